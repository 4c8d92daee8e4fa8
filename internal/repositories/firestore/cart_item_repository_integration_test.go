//go:build integration

package firestore

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	pconfig "github.com/shopfront/api/internal/platform/config"
	pfirestore "github.com/shopfront/api/internal/platform/firestore"
	"github.com/shopfront/api/internal/repositories"
)

const emulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestCartItemRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	endpoint := startEmulator(t)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "cart-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	repo, err := NewCartItemRepository(provider)
	if err != nil {
		t.Fatalf("new cart item repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	created, err := repo.Upsert(ctx, "user-1", 3, 1)
	if err != nil {
		t.Fatalf("upsert create: %v", err)
	}
	if created.ID == "" || created.Quantity != 1 {
		t.Fatalf("unexpected created item: %+v", created)
	}

	merged, err := repo.Upsert(ctx, "user-1", 3, 2)
	if err != nil {
		t.Fatalf("upsert merge: %v", err)
	}
	if merged.ID != created.ID {
		t.Fatalf("expected merge into existing row, got new id %s", merged.ID)
	}
	if merged.Quantity != 3 {
		t.Fatalf("expected merged quantity 3, got %d", merged.Quantity)
	}

	other, err := repo.Upsert(ctx, "user-1", 9, 1)
	if err != nil {
		t.Fatalf("upsert second product: %v", err)
	}

	items, err := repo.ListForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	count, err := repo.CountForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected count 2, got %d", count)
	}

	updated, err := repo.SetQuantity(ctx, "user-1", created.ID, 5)
	if err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if updated.Quantity != 5 {
		t.Fatalf("expected quantity 5, got %d", updated.Quantity)
	}

	if _, err := repo.SetQuantity(ctx, "user-2", created.ID, 2); !repositories.IsNotFound(err) {
		t.Fatalf("expected not-found for cross-user update, got %v", err)
	}
	if err := repo.Delete(ctx, "user-2", created.ID); !repositories.IsNotFound(err) {
		t.Fatalf("expected not-found for cross-user delete, got %v", err)
	}

	if err := repo.Delete(ctx, "user-1", other.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	count, err = repo.CountForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("count after delete: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1 after delete, got %d", count)
	}
}

// startEmulator launches the Firestore emulator in docker and returns its
// host:port, skipping the test when docker is unavailable.
func startEmulator(t *testing.T) string {
	t.Helper()

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	infoCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(infoCtx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	out, err := exec.Command("docker",
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		emulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	containerID := strings.TrimSpace(string(out))
	if containerID == "" {
		t.Fatal("docker returned empty container id")
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = exec.CommandContext(stopCtx, "docker", "stop", containerID).Run()
	})

	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return endpoint
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready", endpoint)
	return ""
}
