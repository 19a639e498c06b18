package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("Unmarshal %q: %v", line, err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestLoggerWritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewLogger(path)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer l.Close()

	ts := time.Date(2026, 2, 19, 10, 30, 0, 0, time.UTC)
	found := true

	l.Log(Entry{
		Timestamp: ts,
		Action:    ActionSecretRead,
		Key:       "chat/database-url",
		Kind:      "text",
		Found:     &found,
	})

	l.Log(Entry{
		Timestamp: ts.Add(time.Hour),
		Action:    ActionSecretWrite,
		Key:       "chat/api-key",
		Actor:     "cli",
		Status:    -25293,
		Error:     "authentication failed",
	})

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	e1 := entries[0]
	if e1.Action != ActionSecretRead {
		t.Errorf("expected secret_read, got %v", e1.Action)
	}
	if e1.Key != "chat/database-url" {
		t.Errorf("expected chat/database-url, got %q", e1.Key)
	}
	if e1.Found == nil || !*e1.Found {
		t.Errorf("expected found=true, got %v", e1.Found)
	}
	if !e1.Timestamp.Equal(ts) {
		t.Errorf("expected timestamp %v, got %v", ts, e1.Timestamp)
	}

	e2 := entries[1]
	if e2.Action != ActionSecretWrite {
		t.Errorf("expected secret_write, got %v", e2.Action)
	}
	if e2.Actor != "cli" {
		t.Errorf("expected cli, got %q", e2.Actor)
	}
	if e2.Status != -25293 {
		t.Errorf("expected status -25293, got %d", e2.Status)
	}
	if e2.Found != nil {
		t.Errorf("expected found to be omitted for writes, got %v", *e2.Found)
	}
}

func TestLoggerAssignsIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path)
	defer l.Close()

	l.Log(Entry{Action: ActionSecretWrite, Key: "a"})
	l.Log(Entry{Action: ActionSecretWrite, Key: "b"})
	l.Log(Entry{ID: "fixed", Action: ActionSecretDelete, Key: "c"})

	entries := readEntries(t, path)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].ID == "" || entries[1].ID == "" {
		t.Fatal("expected generated IDs")
	}
	if entries[0].ID == entries[1].ID {
		t.Errorf("expected distinct IDs, both %q", entries[0].ID)
	}
	if entries[2].ID != "fixed" {
		t.Errorf("expected caller ID to be kept, got %q", entries[2].ID)
	}
}

func TestLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	l1, _ := NewLogger(path)
	l1.Log(Entry{Action: ActionSecretWrite, Key: "first"})
	l1.Close()

	l2, _ := NewLogger(path)
	l2.Log(Entry{Action: ActionSecretProbe, Key: "second"})
	l2.Close()

	entries := readEntries(t, path)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Action != ActionSecretProbe {
		t.Errorf("expected secret_probe, got %v", entries[1].Action)
	}
}

func TestLoggerDefaultTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path)
	defer l.Close()

	before := time.Now().UTC()
	l.Log(Entry{Action: ActionSecretRead, Key: "test"})
	after := time.Now().UTC()

	entries := readEntries(t, path)
	e := entries[0]
	if e.Timestamp.Before(before) || e.Timestamp.After(after) {
		t.Errorf("timestamp %v not between %v and %v", e.Timestamp, before, after)
	}
}

func TestLoggerFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, _ := NewLogger(path)
	l.Close()

	info, _ := os.Stat(path)
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("expected 0600, got %o", perm)
	}
}
