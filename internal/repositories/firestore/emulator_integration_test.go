//go:build integration

package firestore

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	pconfig "github.com/doxvisum/api/internal/platform/config"
	pfirestore "github.com/doxvisum/api/internal/platform/firestore"
)

const emulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

// emulator is shared by every test in the package. Each test uses its own project id, which
// the emulator keeps as an isolated database.
var emulator struct {
	once      sync.Once
	host      string
	container string
	skip      string
	err       error
}

func TestMain(m *testing.M) {
	code := m.Run()
	if emulator.container != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = exec.CommandContext(ctx, "docker", "stop", emulator.container).Run()
		cancel()
	}
	os.Exit(code)
}

func newEmulatorProvider(t *testing.T, projectID string) *pfirestore.Provider {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	emulator.once.Do(startEmulator)
	switch {
	case emulator.skip != "":
		t.Skip(emulator.skip)
	case emulator.err != nil:
		t.Fatalf("firestore emulator: %v", emulator.err)
	}

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: projectID, EmulatorHost: emulator.host})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

// startEmulator reuses FIRESTORE_EMULATOR_HOST when set and otherwise runs the emulator image.
func startEmulator() {
	if host := strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST")); host != "" {
		emulator.host = host
		emulator.err = awaitListener(host, 10*time.Second)
		return
	}
	if _, err := exec.LookPath("docker"); err != nil {
		emulator.skip = "docker not available: " + err.Error()
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		emulator.skip = "docker daemon unavailable: " + err.Error()
		return
	}

	out, err := exec.Command("docker", "run", "-d", "--rm", "-p", "127.0.0.1::8080",
		emulatorImage, "gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		emulator.err = fmt.Errorf("docker run: %w: %s", err, out)
		return
	}
	emulator.container = strings.TrimSpace(string(out))

	// docker picked the host port; ask which one
	out, err = exec.Command("docker", "port", emulator.container, "8080/tcp").Output()
	if err != nil {
		emulator.err = fmt.Errorf("docker port: %w", err)
		return
	}
	emulator.host = strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	emulator.err = awaitListener(emulator.host, 30*time.Second)
}

func awaitListener(host string, within time.Duration) error {
	deadline := time.Now().Add(within)
	for {
		conn, err := net.DialTimeout("tcp", host, 500*time.Millisecond)
		if err == nil {
			return conn.Close()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s not reachable after %s: %w", host, within, err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
