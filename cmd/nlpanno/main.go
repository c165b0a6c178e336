// Command nlpanno is the terminal client for reviewing and labeling text
// samples served by an annotation server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/JackEngelmann/nlpanno/internal/config"
	"github.com/JackEngelmann/nlpanno/internal/fetch"
	"github.com/JackEngelmann/nlpanno/internal/logging"
	"github.com/JackEngelmann/nlpanno/internal/otel"
	"github.com/JackEngelmann/nlpanno/internal/sample"
	"github.com/JackEngelmann/nlpanno/internal/session"
	"github.com/JackEngelmann/nlpanno/internal/ui"
)

const debugRingSize = 256

func main() {
	configPath := flag.String("config", config.ConfigPath(), "Path to the JSON config file")
	server := flag.String("server", "", "Annotation server base URL (overrides config)")
	task := flag.String("task", "", "Task id for multi-task servers (overrides config)")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	if *server != "" {
		cfg.Server.URL = *server
	}
	if *task != "" {
		cfg.Review.TaskID = *task
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fatal("Invalid config: %v", err)
	}

	dataDir := filepath.Dir(*configPath)
	if err := logging.Init(dataDir, cfg.Logging.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	defer logging.Close()

	var events *otel.Logger
	if cfg.Logging.EventLog != "" {
		if events, err = otel.OpenFile(cfg.Logging.EventLog); err != nil {
			fatal("Failed to open event log: %v", err)
		}
	} else {
		events = otel.NewNullLogger()
	}
	ring := otel.NewRingBuffer(debugRingSize)
	events.SetRingBuffer(ring)
	defer events.Close()

	client, err := fetch.NewClient(cfg.Server.URL, fetch.Options{
		Timeout:       cfg.Server.RequestTimeout.Duration,
		RatePerSecond: cfg.Server.RatePerSecond,
		MaxRetries:    cfg.Server.MaxRetries,
	})
	if err != nil {
		fatal("Failed to create client: %v", err)
	}

	logging.Info("nlpanno starting", "server", cfg.Server.URL, "task", cfg.Review.TaskID)
	events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindStartup, Comp: "main", TaskID: cfg.Review.TaskID, Msg: cfg.Server.URL})

	// The program is created after the session; callbacks fired before
	// that are dropped, the first View reads the session anyway.
	var program atomic.Pointer[tea.Program]
	send := func(msg tea.Msg) {
		if p := program.Load(); p != nil {
			p.Send(msg)
		}
	}

	sess := session.New(client, session.Options{
		TaskID:       cfg.Review.TaskID,
		PollInterval: cfg.Review.PollInterval.Duration,
		OnChange:     func() { send(ui.SessionChanged{}) },
		OnStatus:     func(st sample.Status) { send(ui.StatusChanged{Status: st}) },
		Events:       events,
	})

	ctx, cancel := context.WithCancel(context.Background())
	app := ui.NewApp(sess, ui.AppConfig{Context: ctx, Ring: ring})
	p := tea.NewProgram(app, tea.WithAltScreen())
	program.Store(p)

	if _, err := p.Run(); err != nil {
		logging.Error("Program exited with error", "error", err)
	}

	// Graceful shutdown
	cancel()
	sess.Close()
	events.Emit(otel.Event{Level: otel.LevelInfo, Kind: otel.KindShutdown, Comp: "main"})
	logging.Info("nlpanno stopped")
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
