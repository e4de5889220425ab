package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "reviews.db"))
	t.Setenv("REDIS_URL", "")
	t.Setenv("REPLY_WEBHOOK_URL", "")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIngestThenStats(t *testing.T) {
	dir := setupEnv(t)
	batch := filepath.Join(dir, "batch.json")
	body := `{"reviews":[{"id":"t1","rating":4,"text":"Nice"},{"id":"t2","rating":2},{"rating":5}]}`
	if err := os.WriteFile(batch, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "ingest", "--file", batch, "--source", "tripadvisor")
	if err != nil {
		t.Fatalf("ingest error = %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("ingest output %q: %v", out, err)
	}
	if result["stored"] != float64(2) || result["failed"] != float64(1) {
		t.Errorf("ingest result = %v", result)
	}

	out, err = run(t, "stats")
	if err != nil {
		t.Fatalf("stats error = %v", err)
	}
	var stats map[string]any
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats output %q: %v", out, err)
	}
	if stats["total"] != float64(2) {
		t.Errorf("stats = %v", stats)
	}
}

func TestIngest_RequiresFile(t *testing.T) {
	setupEnv(t)
	if _, err := run(t, "ingest"); err == nil || !strings.Contains(err.Error(), "--file") {
		t.Errorf("ingest without --file error = %v", err)
	}
}

func TestIngest_BadBatch(t *testing.T) {
	dir := setupEnv(t)
	batch := filepath.Join(dir, "batch.json")
	if err := os.WriteFile(batch, []byte(`{"items":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "ingest", "--file", batch); err == nil {
		t.Error("ingest of a non-batch body should fail")
	}
}

func TestDraftPending_WithoutGenerator(t *testing.T) {
	dir := setupEnv(t)
	batch := filepath.Join(dir, "batch.json")
	if err := os.WriteFile(batch, []byte(`[{"reviewId":"g1","rating":5}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "ingest", "--file", batch); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "draft-pending", "--limit", "5")
	if err != nil {
		t.Fatalf("draft-pending error = %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	if result["scanned"] != float64(1) || result["failed"] != float64(1) {
		t.Errorf("draft-pending without a generator = %v", result)
	}
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "migrate", "version")
	if err == nil || !strings.Contains(err.Error(), "postgres") {
		t.Errorf("migrate on sqlite error = %v", err)
	}
}
