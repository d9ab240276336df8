package replaycatalog

import (
	"os"
	"path/filepath"
	"testing"

	"swingspin/bowler/internal/replay"
)

func writeHeader(t *testing.T, dir, session string, deliveries int) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, "header.json")
	header := replay.Header{
		SchemaVersion: replay.HeaderSchemaVersion,
		SessionID:     session,
		Tuning:        replay.Tuning{"swing_force": 5},
		Deliveries:    deliveries,
		FilePointer:   "manifest.json",
	}
	if err := replay.WriteHeader(path, header); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	return path
}

func TestListCollectsHeaders(t *testing.T) {
	root := t.TempDir()
	writeHeader(t, filepath.Join(root, "b"), "session-b", 2)
	alpha := filepath.Join(root, "a")
	writeHeader(t, alpha, "session-a", 3)
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatalf("write notes: %v", err)
	}

	entries, err := List(root)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[0].Header.SessionID != "session-a" {
		t.Fatalf("entries not sorted: %q first", entries[0].Header.SessionID)
	}
	if entries[0].ManifestPath != filepath.Join(alpha, "manifest.json") {
		t.Fatalf("unexpected manifest path: %q", entries[0].ManifestPath)
	}
	if got := TotalDeliveries(entries); got != 5 {
		t.Fatalf("expected 5 deliveries, got %d", got)
	}

	payload, err := MarshalEntries(entries)
	if err != nil {
		t.Fatalf("MarshalEntries: %v", err)
	}
	if len(payload) == 0 {
		t.Fatalf("expected JSON payload to be non-empty")
	}
}

func TestListRejectsFiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := List(file); err == nil {
		t.Fatalf("expected error for non-directory root")
	}
	if _, err := List(" "); err == nil {
		t.Fatalf("expected error for empty root")
	}
}
