package postgres

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/justinlietz93/toolstream/pkg/stream/executor"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a connected Store.
// Tests are skipped if Docker/podman is not available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	if _, err := exec.LookPath("podman"); err != nil {
		t.Skip("podman not found, skipping integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("toolstream_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container (is podman running?): %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// countRows polls call_history for streamID's row count, waiting (up to two
// seconds) for the Store's async writer goroutine to write want rows.
func countRows(t *testing.T, store *Store, streamID string, want int) int {
	t.Helper()
	ctx := context.Background()
	var n int
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := store.pool.QueryRow(ctx,
			"SELECT count(*) FROM call_history WHERE stream_id = $1", streamID,
		).Scan(&n); err != nil {
			t.Fatalf("counting rows: %v", err)
		}
		if n >= want {
			return n
		}
		time.Sleep(20 * time.Millisecond)
	}
	return n
}

func TestPostgres_ArchiveSuccessfulEntry(t *testing.T) {
	store := setupTestDB(t)
	streamID := "stream-" + strconv.FormatInt(time.Now().UnixNano(), 10)

	store.Archive(streamID, executor.HistoryEntry{
		Timestamp:   time.Now(),
		ToolName:    "shell",
		InputFields: map[string]any{"command": "echo hi"},
		Result:      "hi\n",
		Status:      "ok",
	})

	if got := countRows(t, store, streamID, 1); got != 1 {
		t.Errorf("row count = %d, want 1", got)
	}

	var toolName, status, kind string
	err := store.pool.QueryRow(context.Background(),
		"SELECT tool_name, status, kind FROM call_history WHERE stream_id = $1", streamID,
	).Scan(&toolName, &status, &kind)
	if err != nil {
		t.Fatalf("querying archived row: %v", err)
	}
	if toolName != "shell" {
		t.Errorf("tool_name = %q, want %q", toolName, "shell")
	}
	if status != "ok" {
		t.Errorf("status = %q, want %q", status, "ok")
	}
	if kind != "" {
		t.Errorf("kind = %q, want empty for a successful dispatch", kind)
	}
}

func TestPostgres_ArchiveFailureEntry(t *testing.T) {
	store := setupTestDB(t)
	streamID := "stream-" + strconv.FormatInt(time.Now().UnixNano(), 10)

	store.Archive(streamID, executor.HistoryEntry{
		Timestamp:   time.Now(),
		ToolName:    "nope",
		InputFields: map[string]any{},
		Result:      "nope",
		Kind:        executor.ErrUnknownTool,
		Status:      "fail",
	})

	if got := countRows(t, store, streamID, 1); got != 1 {
		t.Errorf("row count = %d, want 1", got)
	}

	var kind, status string
	err := store.pool.QueryRow(context.Background(),
		"SELECT kind, status FROM call_history WHERE stream_id = $1", streamID,
	).Scan(&kind, &status)
	if err != nil {
		t.Fatalf("querying archived row: %v", err)
	}
	if kind != string(executor.ErrUnknownTool) {
		t.Errorf("kind = %q, want %q", kind, executor.ErrUnknownTool)
	}
	if status != "fail" {
		t.Errorf("status = %q, want %q", status, "fail")
	}
}

func TestPostgres_MultipleEntriesPreserveOrder(t *testing.T) {
	store := setupTestDB(t)
	streamID := "stream-" + strconv.FormatInt(time.Now().UnixNano(), 10)

	base := time.Now()
	for i, name := range []string{"file", "shell", "http_request"} {
		store.Archive(streamID, executor.HistoryEntry{
			Timestamp:   base.Add(time.Duration(i) * time.Millisecond),
			ToolName:    name,
			InputFields: map[string]any{},
			Result:      "ok",
			Status:      "ok",
		})
	}

	if got := countRows(t, store, streamID, 3); got != 3 {
		t.Fatalf("row count = %d, want 3", got)
	}

	rows, err := store.pool.Query(context.Background(),
		"SELECT tool_name FROM call_history WHERE stream_id = $1 ORDER BY ts ASC", streamID,
	)
	if err != nil {
		t.Fatalf("querying rows: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scanning row: %v", err)
		}
		names = append(names, n)
	}
	want := []string{"file", "shell", "http_request"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestPostgres_HealthCheck(t *testing.T) {
	store := setupTestDB(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestPostgres_CloseDrainsQueueBeforeReturning(t *testing.T) {
	store := setupTestDB(t)
	streamID := "stream-" + strconv.FormatInt(time.Now().UnixNano(), 10)

	store.Archive(streamID, executor.HistoryEntry{
		Timestamp:   time.Now(),
		ToolName:    "shell",
		InputFields: map[string]any{},
		Result:      "ok",
		Status:      "ok",
	})

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}
