package e2e

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
)

// fixtureDataset is a two-sample task; the first sample's top prediction
// is weather.
const fixtureDataset = `
tasks:
  - id: intents
    name: Fixture Intents
    classes: [weather, music]
    samples:
      - id: fixture-1
        text: will it rain tomorrow
        predictions: {weather: 0.9, music: 0.1}
      - id: fixture-2
        text: play some jazz
        predictions: {weather: 0.2, music: 0.7}
`

func writeFixtureDataset(dir string) (string, error) {
	path := filepath.Join(dir, "dataset.yaml")
	return path, os.WriteFile(path, []byte(fixtureDataset), 0o644)
}

// buildBinary builds ./cmd/<name> into a temp dir and returns its path.
func buildBinary(t *testing.T, name string) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), name)

	rootDir, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	// Assume we are in test/e2e, go up 2 levels
	rootDir = filepath.Join(rootDir, "..", "..")

	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/"+name)
	cmd.Dir = rootDir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("build %s failed: %v\n%s", name, err, out)
	}
	return binPath
}

// freeAddr reserves a loopback port and releases it for the server to bind.
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

// startServer runs annoserve over the fixture dataset and waits until it
// answers /api/status.
func startServer(t *testing.T, bin, dataset, addr string) {
	t.Helper()
	cmd := exec.Command(bin, "--addr", addr, "--dataset", dataset, "--busy", "100ms")
	if err := cmd.Start(); err != nil {
		t.Fatalf("start annoserve: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	url := fmt.Sprintf("http://%s/api/status", addr)
	backoff := retry.WithMaxRetries(50, retry.NewConstant(100*time.Millisecond))
	err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		resp, err := http.Get(url)
		if err != nil {
			return retry.RetryableError(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return retry.RetryableError(fmt.Errorf("status %d", resp.StatusCode))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("annoserve did not come up: %v", err)
	}
}
