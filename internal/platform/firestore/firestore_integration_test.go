//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	pconfig "github.com/shopfront/api/internal/platform/config"
	pfirestore "github.com/shopfront/api/internal/platform/firestore"
)

const emulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

type sampleItem struct {
	UserID    string `firestore:"userId"`
	ProductID int64  `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
}

func TestProviderAndRepositoryIntegration(t *testing.T) {
	endpoint := startEmulator(t)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "test-project",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if client, err := provider.Client(ctx); err != nil || client == nil {
		t.Fatalf("expected firestore client, got %v / %v", client, err)
	}

	repo := pfirestore.NewBaseRepository[sampleItem](provider, "cart_items", nil, nil)

	mustGet := func(id string) pfirestore.Document[sampleItem] {
		t.Helper()
		doc, err := repo.Get(ctx, id)
		if err != nil {
			t.Fatalf("get %s failed: %v", id, err)
		}
		return doc
	}
	byUser := func(uid string) pfirestore.QueryBuilder {
		return func(q firestore.Query) firestore.Query {
			return q.Where("userId", "==", uid)
		}
	}

	t.Run("set and get", func(t *testing.T) {
		if _, err := repo.Set(ctx, "item-1", sampleItem{UserID: "u1", ProductID: 7, Quantity: 1}); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		doc := mustGet("item-1")
		if doc.ID != "item-1" {
			t.Fatalf("expected id item-1, got %s", doc.ID)
		}
		if doc.Data.UserID != "u1" || doc.Data.Quantity != 1 {
			t.Fatalf("unexpected data: %#v", doc.Data)
		}
		if doc.UpdateTime.IsZero() {
			t.Fatal("expected update time to be set")
		}
	})

	t.Run("field update", func(t *testing.T) {
		if _, err := repo.Update(ctx, "item-1", []firestore.Update{{Path: "quantity", Value: 2}}); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		if got := mustGet("item-1").Data.Quantity; got != 2 {
			t.Fatalf("expected quantity=2, got %d", got)
		}
	})

	t.Run("query and count", func(t *testing.T) {
		docs, err := repo.Query(ctx, byUser("u1"))
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		if len(docs) != 1 {
			t.Fatalf("expected 1 document, got %d", len(docs))
		}
		count, err := repo.Count(ctx, byUser("u1"))
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected count=1, got %d", count)
		}
	})

	t.Run("missing document classification", func(t *testing.T) {
		_, err := repo.Get(ctx, "missing")
		if err == nil {
			t.Fatal("expected not found error")
		}
		type repoClassifier interface{ IsNotFound() bool }
		var cls repoClassifier
		if !errors.As(err, &cls) || !cls.IsNotFound() {
			t.Fatalf("expected not-found classification, got %v", err)
		}
	})

	t.Run("transactional increment", func(t *testing.T) {
		err := provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			ref, err := repo.DocumentRef(ctx, "item-1")
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				return err
			}
			var item sampleItem
			if err := snap.DataTo(&item); err != nil {
				return err
			}
			item.Quantity++
			return tx.Set(ref, item)
		})
		if err != nil {
			t.Fatalf("transaction failed: %v", err)
		}
		if got := mustGet("item-1").Data.Quantity; got != 3 {
			t.Fatalf("expected quantity=3 after txn, got %d", got)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if _, err := repo.Delete(ctx, "item-1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if _, err := repo.Get(ctx, "item-1"); err == nil {
			t.Fatal("expected not found after delete")
		}
	})

	t.Run("cancelled transaction context", func(t *testing.T) {
		cancelled, stop := context.WithCancel(context.Background())
		stop()
		err := provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error {
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context canceled error, got %v", err)
		}
	})
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
	awaitEndpoint(t, endpoint, 30*time.Second)
	return endpoint
}

func awaitEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}
