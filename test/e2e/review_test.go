package e2e

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	expect "github.com/Netflix/go-expect"
	"github.com/creack/pty"
)

func TestE2E_LabelAndAdvance(t *testing.T) {
	if testing.Short() {
		t.Skip("builds binaries")
	}
	serverBin := buildBinary(t, "annoserve")
	clientBin := buildBinary(t, "nlpanno")

	// Clean home directory so the client uses fresh ~/.nlpanno config and logs
	homeDir := t.TempDir()
	dataset, err := writeFixtureDataset(homeDir)
	if err != nil {
		t.Fatalf("failed to write fixture dataset: %v", err)
	}

	addr := freeAddr(t)
	startServer(t, serverBin, dataset, addr)

	cmd := exec.Command(clientBin, "--server", "http://"+addr, "--task", "intents")
	cmd.Env = append(os.Environ(), "HOME="+homeDir)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		t.Fatalf("failed to start pty: %v", err)
	}
	defer func() {
		_ = ptmx.Close()
		_ = cmd.Process.Kill()
	}()

	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: 120, Rows: 40}); err != nil {
		t.Fatalf("failed to set pty size: %v", err)
	}

	var outputBuf bytes.Buffer
	console, err := expect.NewConsole(
		expect.WithStdin(ptmx),
		expect.WithStdout(&outputBuf),
		expect.WithDefaultTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("failed to create console: %v", err)
	}
	defer console.Close()

	dumpLogs := func() {
		matches, _ := filepath.Glob(filepath.Join(homeDir, ".nlpanno", "logs", "*.log"))
		for _, m := range matches {
			if logs, err := os.ReadFile(m); err == nil {
				t.Logf("%s:\n%s", filepath.Base(m), logs)
			}
		}
	}

	t.Log("Waiting for first sample...")
	if _, err := console.ExpectString("will it rain tomorrow"); err != nil {
		dumpLogs()
		t.Fatalf("first sample not shown: %v\nScreen:\n%s", err, outputBuf.String())
	}
	if _, err := console.ExpectString("1 / 1"); err != nil {
		t.Fatalf("position not shown: %v\nScreen:\n%s", err, outputBuf.String())
	}

	// Label with the top-ranked class; the client fetches and moves on.
	time.Sleep(300 * time.Millisecond)
	if _, err := console.Send("1"); err != nil {
		t.Fatalf("failed to send 1: %v", err)
	}

	t.Log("Waiting for second sample...")
	if _, err := console.ExpectString("play some jazz"); err != nil {
		dumpLogs()
		t.Fatalf("second sample not shown: %v\nScreen:\n%s", err, outputBuf.String())
	}
	if _, err := console.ExpectString("2 / 2"); err != nil {
		t.Fatalf("position not advanced: %v\nScreen:\n%s", err, outputBuf.String())
	}

	t.Log("Sending 'q'...")
	if _, err := console.Send("q"); err != nil {
		t.Fatalf("failed to send q: %v", err)
	}

	done := make(chan error)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Error("Process did not exit after 'q'")
	}
}
