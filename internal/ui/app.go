package ui

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/JackEngelmann/nlpanno/internal/otel"
	"github.com/JackEngelmann/nlpanno/internal/ranking"
	"github.com/JackEngelmann/nlpanno/internal/sample"
	"github.com/JackEngelmann/nlpanno/internal/selection"
	"github.com/JackEngelmann/nlpanno/internal/status"
	"github.com/JackEngelmann/nlpanno/internal/stream"
)

// Controller is what the App needs from a review session.
// *session.Session satisfies it.
type Controller interface {
	Open(ctx context.Context) error
	Task() (sample.AnnotationTask, bool)
	State() stream.State
	Current() (sample.Sample, error)
	Ranked() ([]ranking.ClassPrediction, error)
	Position() (index, total int)
	IsFirst() bool
	IsLast() bool
	Advancing() bool
	Next() error
	Previous() error
	Select(class sample.TextClass) error
	ClearLabel() error
	Retry(ctx context.Context) error
	Readiness() status.Readiness
	ServerStatus() (sample.Status, bool)
}

// AppConfig holds optional App dependencies.
type AppConfig struct {
	// Context bounds Open and Retry. Defaults to context.Background.
	Context context.Context
	// Ring feeds the debug overlay. Nil disables it.
	Ring *otel.RingBuffer
}

// App is the root Bubble Tea model. It holds no sample data of its own:
// every View reads the controller, and background work only nudges a
// re-render through SessionChanged.
type App struct {
	ctrl Controller
	ctx  context.Context
	ring *otel.RingBuffer

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	bar     progress.Model

	width        int
	height       int
	ready        bool
	opened       bool
	retrying     bool
	highlight    int
	debugVisible bool
	notice       string
	err          error
}

// NewApp creates an App driving ctrl.
func NewApp(ctrl Controller, cfg AppConfig) App {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return App{
		ctrl:    ctrl,
		ctx:     ctx,
		ring:    cfg.Ring,
		keys:    keys,
		help:    help.New(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(WorkerBusy)),
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(confidenceBarWidth),
			progress.WithoutPercentage(),
		),
	}
}

// Init opens the session and starts the spinner.
func (a App) Init() tea.Cmd {
	ctrl, ctx := a.ctrl, a.ctx
	open := func() tea.Msg {
		return SessionOpened{Err: ctrl.Open(ctx)}
	}
	return tea.Batch(open, a.spinner.Tick)
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.help.Width = msg.Width
		a.ready = true
		return a, nil

	case SessionOpened:
		a.opened = true
		a.err = msg.Err
		a.clampHighlight()
		return a, nil

	case SessionChanged:
		a.clampHighlight()
		return a, nil

	case StatusChanged:
		return a, nil

	case Retried:
		a.retrying = false
		a.err = msg.Err
		a.clampHighlight()
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	a.notice = ""

	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keys.Debug):
		a.debugVisible = !a.debugVisible
		return a, nil

	case a.debugVisible:
		return a, nil

	case key.Matches(msg, a.keys.Help):
		a.help.ShowAll = !a.help.ShowAll
		return a, nil

	case key.Matches(msg, a.keys.Pick):
		a.selectAt(int(msg.String()[0] - '1'))
		return a, nil

	case key.Matches(msg, a.keys.Confirm):
		a.selectAt(a.highlight)
		return a, nil

	case key.Matches(msg, a.keys.Up):
		if a.highlight > 0 {
			a.highlight--
		}
		return a, nil

	case key.Matches(msg, a.keys.Down):
		if ranked, err := a.ctrl.Ranked(); err == nil && a.highlight < len(ranked)-1 {
			a.highlight++
		}
		return a, nil

	case key.Matches(msg, a.keys.Next):
		a.navigate(a.ctrl.Next())
		return a, nil

	case key.Matches(msg, a.keys.Previous):
		a.navigate(a.ctrl.Previous())
		return a, nil

	case key.Matches(msg, a.keys.Clear):
		if err := a.ctrl.ClearLabel(); err != nil {
			a.notice = describe(err)
		}
		return a, nil

	case key.Matches(msg, a.keys.Retry):
		if a.retrying {
			return a, nil
		}
		a.retrying = true
		ctrl, ctx := a.ctrl, a.ctx
		return a, func() tea.Msg {
			return Retried{Err: ctrl.Retry(ctx)}
		}
	}

	return a, nil
}

// selectAt labels the current sample with the i-th ranked class.
func (a *App) selectAt(i int) {
	ranked, err := a.ctrl.Ranked()
	if err != nil {
		a.notice = describe(err)
		return
	}
	if i < 0 || i >= len(ranked) {
		return
	}
	if err := a.ctrl.Select(ranked[i].Class); err != nil {
		a.notice = describe(err)
		return
	}
	a.highlight = 0
}

func (a *App) navigate(err error) {
	if err != nil {
		a.notice = describe(err)
		return
	}
	a.highlight = 0
}

func (a *App) clampHighlight() {
	ranked, err := a.ctrl.Ranked()
	if err != nil || a.highlight >= len(ranked) {
		a.highlight = 0
	}
}

// describe turns controller errors into short user-facing notices.
func describe(err error) string {
	switch {
	case errors.Is(err, selection.ErrAtStart):
		return "Already at the first sample"
	case errors.Is(err, selection.ErrAtEnd):
		return "No further samples loaded yet"
	case errors.Is(err, selection.ErrEmpty), errors.Is(err, selection.ErrOutOfRange):
		return "No sample on screen"
	case errors.Is(err, stream.ErrClosed):
		return "Session closed"
	default:
		return err.Error()
	}
}

// Highlight returns the highlighted class row (for testing).
func (a App) Highlight() int {
	return a.highlight
}

// Notice returns the current notice line (for testing).
func (a App) Notice() string {
	return a.notice
}

// Err returns the error of the last open or retry (for testing).
func (a App) Err() error {
	return a.err
}
