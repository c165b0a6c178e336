package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/JackEngelmann/nlpanno/internal/ranking"
	"github.com/JackEngelmann/nlpanno/internal/sample"
	"github.com/JackEngelmann/nlpanno/internal/status"
)

const (
	confidenceBarWidth = 20
	maxCardWidth       = 80
)

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}
	if a.debugVisible {
		return debugOverlay(a.ring, a.width, a.height) + "\n" + debugStatusBar(a.width)
	}

	var b strings.Builder
	b.WriteString(a.renderHeader())
	b.WriteString("\n")
	b.WriteString(a.renderBody())
	b.WriteString("\n")

	if a.notice != "" {
		b.WriteString(NoticeStyle.Render(a.notice))
		b.WriteString("\n")
	}
	if a.ctrl.Readiness() == status.Failed && !a.retrying {
		b.WriteString(ErrorStyle.Render("Could not reach the annotation server. Press r to retry."))
		b.WriteString("\n")
	}

	b.WriteString(a.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(a.help.View(a.keys)))
	return b.String()
}

func (a App) renderHeader() string {
	title := "nlpanno"
	if task, ok := a.ctrl.Task(); ok && task.Name != "" {
		title = task.Name
	}
	return HeaderStyle.Render(title)
}

func (a App) renderBody() string {
	cur, err := a.ctrl.Current()
	if err != nil {
		switch {
		case a.ctrl.Readiness() == status.Failed:
			return ""
		case a.ctrl.State().Exhausted:
			return NormalClass.Render("All samples are labeled.")
		default:
			return a.spinner.View() + " Loading samples..."
		}
	}

	ranked, err := a.ctrl.Ranked()
	if err != nil {
		// Task config missing while a sample is shown: text only.
		ranked = nil
	}

	cardWidth := min(maxCardWidth, max(a.width-4, 20))
	card := SampleCard.Width(cardWidth).Render(SampleText.Render(cur.Text))

	rows := make([]string, 0, len(ranked)+2)
	rows = append(rows, card)
	for i, p := range ranked {
		rows = append(rows, a.renderClassRow(i, p, cur))
	}
	if a.ctrl.Advancing() {
		rows = append(rows, a.spinner.View()+" Loading next sample...")
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (a App) renderClassRow(i int, p ranking.ClassPrediction, cur sample.Sample) string {
	index := " "
	if i < 9 {
		index = fmt.Sprintf("%d", i+1)
	}
	mark := " "
	if cur.TextClass != nil && cur.TextClass.ID == p.Class.ID {
		mark = LabelMark.Render("✓")
	}

	name := truncateRunes(p.Name(), 24)
	label := fmt.Sprintf("%-24s", name)
	if i == a.highlight {
		label = SelectedClass.Render(label)
	} else {
		label = NormalClass.Render(label)
	}

	return fmt.Sprintf("%s %s %s %s %s",
		ClassIndex.Render(index),
		label,
		a.bar.ViewAs(p.Confidence),
		Confidence.Render(fmt.Sprintf("%.2f", p.Confidence)),
		mark,
	)
}

func (a App) renderStatusBar() string {
	index, total := a.ctrl.Position()
	pos := "-"
	if total > 0 {
		pos = fmt.Sprintf("%d / %d", index+1, total)
	}

	worker := StatusBarText.Render("worker: ?")
	if st, ok := a.ctrl.ServerStatus(); ok {
		if st.Worker.IsWorking {
			worker = WorkerBusy.Render("worker: estimating")
		} else {
			worker = WorkerIdle.Render("worker: idle")
		}
	}

	state := a.ctrl.Readiness().String()
	if a.retrying {
		state = "retrying"
	}

	parts := []string{
		StatusBarKey.Render(pos),
		StatusBarText.Render(state),
		worker,
	}
	if a.ctrl.State().Exhausted {
		parts = append(parts, StatusBarText.Render("no more samples"))
	}
	return StatusBar.Width(a.width).Render(strings.Join(parts, "  "))
}
