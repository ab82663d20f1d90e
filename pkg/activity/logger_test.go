package activity

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/costdesk/pkg/models"
)

func tempCfg(t *testing.T) models.ActivityConfig {
	t.Helper()
	return models.ActivityConfig{
		Enabled:        true,
		DBPath:         filepath.Join(t.TempDir(), "activity_test.db"),
		RetentionDays:  30,
		IncludeQueries: true,
		MaxSubjectSize: 64,
	}
}

func mustNew(t *testing.T, cfg models.ActivityConfig) *Logger {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleEntry() models.ActivityEntry {
	return models.ActivityEntry{
		ID:        "act-001",
		Kind:      models.ActivityChat,
		Subject:   "two t3.medium web servers with 100GB",
		Outcome:   "ok",
		Rows:      3,
		LatencyMs: 420,
		CreatedAt: time.Now(),
	}
}

func TestLogAndQuery(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry()); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.ActivityQueryOpts{Kind: models.ActivityChat})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.ID != "act-001" || e.Rows != 3 || e.Subject != "two t3.medium web servers with 100GB" {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestQueryFilters(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())
	upload := models.ActivityEntry{ID: "act-002", Kind: models.ActivityUpload, Subject: "report.xlsx", Outcome: "store_operation", Detail: "Upload failed: AccessDenied"}
	_ = l.Log(ctx, upload)

	entries, err := l.Query(ctx, models.ActivityQueryOpts{Outcome: "store_operation"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 || entries[0].Detail != "Upload failed: AccessDenied" {
		t.Fatalf("unexpected entries %+v", entries)
	}

	entries, _ = l.Query(ctx, models.ActivityQueryOpts{ID: "act-001"})
	if len(entries) != 1 || entries[0].Kind != models.ActivityChat {
		t.Errorf("unexpected entries by id %+v", entries)
	}

	entries, _ = l.Query(ctx, models.ActivityQueryOpts{Since: time.Now().Add(time.Hour)})
	if len(entries) != 0 {
		t.Errorf("expected nothing in the future, got %d", len(entries))
	}
}

func TestQueriesRedactedByDefault(t *testing.T) {
	cfg := tempCfg(t)
	cfg.IncludeQueries = false
	l := mustNew(t, cfg)
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())
	upload := models.ActivityEntry{ID: "act-002", Kind: models.ActivityUpload, Subject: "report.xlsx", Outcome: "ok"}
	_ = l.Log(ctx, upload)

	chat, _ := l.Query(ctx, models.ActivityQueryOpts{ID: "act-001"})
	if len(chat) != 1 || chat[0].Subject != "" {
		t.Errorf("expected redacted query, got %+v", chat)
	}
	up, _ := l.Query(ctx, models.ActivityQueryOpts{ID: "act-002"})
	if len(up) != 1 || up[0].Subject != "report.xlsx" {
		t.Errorf("file names are not queries, got %+v", up)
	}
}

func TestSubjectTruncation(t *testing.T) {
	cfg := tempCfg(t)
	cfg.MaxSubjectSize = 16
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.Subject = strings.Repeat("x", 100)
	if err := l.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.ActivityQueryOpts{ID: "act-001"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries[0].Subject) != 16 {
		t.Errorf("expected truncated subject len 16, got %d", len(entries[0].Subject))
	}
}

func TestGeneratedID(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	entry := sampleEntry()
	entry.ID = ""
	entry.CreatedAt = time.Time{}
	if err := l.Log(ctx, entry); err != nil {
		t.Fatal(err)
	}
	entries, _ := l.Query(ctx, models.ActivityQueryOpts{})
	if len(entries) != 1 || len(entries[0].ID) != 36 {
		t.Errorf("expected a uuid id, got %+v", entries)
	}
}

func TestCleanup(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 0 // everything is old
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.CreatedAt = time.Now().AddDate(0, 0, -1)
	_ = l.Log(ctx, entry)

	deleted, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}

func TestStats(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())
	e2 := sampleEntry()
	e2.ID = "act-002"
	_ = l.Log(ctx, e2)

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected one group, got %d", len(stats))
	}
	if stats[0].Count != 2 || stats[0].Kind != models.ActivityChat || stats[0].Outcome != "ok" {
		t.Errorf("unexpected stat %+v", stats[0])
	}
}

func TestNilLoggerSafe(t *testing.T) {
	var l *Logger
	if err := l.Log(context.Background(), sampleEntry()); err != nil {
		t.Errorf("nil logger should be safe: %v", err)
	}
}

func TestNewInvalidPath(t *testing.T) {
	cfg := models.ActivityConfig{
		Enabled: true,
		DBPath:  filepath.Join(os.TempDir(), "nonexistent", "deep", "path", "activity.db"),
	}
	if _, err := New(cfg); err == nil {
		t.Error("expected error for invalid path")
	}
}
