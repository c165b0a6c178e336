// Command annoserve runs a local annotation server over a SQLite store,
// seeded from a YAML dataset, for developing against the review client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/JackEngelmann/nlpanno/internal/devserver"
	"github.com/JackEngelmann/nlpanno/internal/logging"
	"github.com/JackEngelmann/nlpanno/internal/store"
)

const shutdownTimeout = 5 * time.Second

func main() {
	addr := flag.String("addr", "localhost:8000", "Listen address")
	dbPath := flag.String("db", ":memory:", "SQLite database path")
	dataset := flag.String("dataset", "", "YAML dataset to seed the store with")
	variant := flag.String("variant", "candidates", "Prediction shape: candidates or vector")
	busy := flag.Duration("busy", devserver.DefaultBusyWindow, "How long the worker reports busy after a label change")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logging.InitWriter(os.Stderr, *level)
	gin.SetMode(gin.ReleaseMode)

	v, err := devserver.ParseVariant(*variant)
	if err != nil {
		fatal("%v", err)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		fatal("Failed to open database: %v", err)
	}
	defer st.Close()

	if *dataset != "" {
		d, err := store.LoadDataset(*dataset)
		if err != nil {
			fatal("Failed to load dataset: %v", err)
		}
		n, err := st.Seed(d)
		if err != nil {
			fatal("Failed to seed store: %v", err)
		}
		logging.Info("Dataset seeded", "path", *dataset, "samples", n)
	}

	tasks, err := st.Tasks()
	if err != nil {
		fatal("Failed to list tasks: %v", err)
	}
	if len(tasks) == 0 {
		logging.Warn("Store has no tasks; pass --dataset to seed one")
	}
	for _, t := range tasks {
		labeled, total, err := st.Progress(t.ID)
		if err != nil {
			fatal("Failed to read progress: %v", err)
		}
		logging.Info("Task ready", "id", t.ID, "name", t.Name, "classes", len(t.TextClasses), "labeled", labeled, "total", total)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           devserver.New(st, devserver.Options{Variant: v, BusyWindow: *busy}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logging.Info("annoserve listening", "addr", *addr, "variant", v)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			fatal("Server failed: %v", err)
		}
	case <-ctx.Done():
		logging.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Error("Shutdown failed", "error", err)
		}
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
