package keychain

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benaskins/keyguard/internal/audit"
)

func setupAuditedStore(t *testing.T) (*AuditedStore, *MemoryBackend, string) {
	t.Helper()
	dir := t.TempDir()
	auditPath := filepath.Join(dir, "audit.log")
	metaPath := filepath.Join(dir, "secret-metadata.json")

	auditLog, err := audit.NewLogger(auditPath)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { auditLog.Close() })

	meta, err := NewMetadataStore(metaPath)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}

	backend := NewMemoryBackend()
	store := NewAuditedStore(New(backend), auditLog, meta, "cli")

	return store, backend, auditPath
}

func readAuditEntries(t *testing.T, path string) []audit.Entry {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	entries := make([]audit.Entry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var e audit.Entry
		json.Unmarshal([]byte(line), &e)
		entries = append(entries, e)
	}
	return entries
}

func TestAuditedStoreSetLogsWrite(t *testing.T) {
	store, _, auditPath := setupAuditedStore(t)

	if err := store.Set("test/key", Text("value"), DefaultPolicy); err != nil {
		t.Fatalf("Set: %v", err)
	}

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Action != audit.ActionSecretWrite {
		t.Errorf("expected secret_write, got %v", entries[0].Action)
	}
	if entries[0].Key != "test/key" {
		t.Errorf("expected test/key, got %q", entries[0].Key)
	}
	if entries[0].Kind != "text" {
		t.Errorf("expected kind text, got %q", entries[0].Kind)
	}
	if entries[0].Actor != "cli" {
		t.Errorf("expected cli, got %q", entries[0].Actor)
	}
	if strings.Contains(mustRead(t, auditPath), "value") {
		t.Error("audit log must not contain the secret value")
	}
}

func TestAuditedStoreFetchLogsRead(t *testing.T) {
	store, _, auditPath := setupAuditedStore(t)

	store.Set("test/get", Text("val"), DefaultPolicy)
	store.FetchText("test/get")
	store.FetchText("test/missing")

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[1].Action != audit.ActionSecretRead {
		t.Errorf("expected secret_read, got %v", entries[1].Action)
	}
	if entries[1].Found == nil || !*entries[1].Found {
		t.Errorf("expected found=true for stored key")
	}
	if entries[2].Found == nil || *entries[2].Found {
		t.Errorf("expected found=false for missing key")
	}
}

func TestAuditedStoreLogsFailureStatus(t *testing.T) {
	store, backend, auditPath := setupAuditedStore(t)
	backend.FailNext(RequestAdd, StatusAuthFailed)

	if err := store.Set("test/denied", Flag(true), DefaultPolicy); err == nil {
		t.Fatal("expected error")
	}

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Status != int32(StatusAuthFailed) {
		t.Errorf("expected status %d, got %d", StatusAuthFailed, entries[0].Status)
	}
	if entries[0].Error == "" {
		t.Error("expected error in audit entry")
	}
	if store.Metadata().Get("test/denied") != nil {
		t.Error("failed write must not be tracked")
	}
}

func TestAuditedStoreDeleteLogsDelete(t *testing.T) {
	store, _, auditPath := setupAuditedStore(t)

	store.Set("test/del", Text("val"), DefaultPolicy)
	store.Delete("test/del")

	entries := readAuditEntries(t, auditPath)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Action != audit.ActionSecretDelete {
		t.Errorf("expected secret_delete, got %v", entries[1].Action)
	}
	if len(store.List()) != 0 {
		t.Errorf("expected no keys after delete, got %v", store.List())
	}
}

func TestAuditedStoreExistsLogsProbe(t *testing.T) {
	store, _, auditPath := setupAuditedStore(t)

	store.Set("test/probe", Bytes{1, 2}, DefaultPolicy)
	ok, err := store.Exists("test/probe")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	entries := readAuditEntries(t, auditPath)
	if entries[len(entries)-1].Action != audit.ActionSecretProbe {
		t.Errorf("expected secret_probe, got %v", entries[len(entries)-1].Action)
	}
}

func TestAuditedStoreRequestID(t *testing.T) {
	store, _, auditPath := setupAuditedStore(t)

	store.WithRequest("req-1").Set("test/req", Flag(false), DefaultPolicy)
	store.FetchFlag("test/req")

	entries := readAuditEntries(t, auditPath)
	if entries[0].RequestID != "req-1" {
		t.Errorf("expected request id req-1, got %q", entries[0].RequestID)
	}
	if entries[1].RequestID != "" {
		t.Errorf("request id must not leak to the parent store, got %q", entries[1].RequestID)
	}
}

func TestAuditedStoreTracksMetadata(t *testing.T) {
	store, _, _ := setupAuditedStore(t)

	store.Set("b", Text("1"), DefaultPolicy)
	store.Set("a", Flag(true), AccessPolicy{Accessible: AccessibleWhenUnlocked})
	first := store.Metadata().Get("b")
	store.Set("b", Bytes{9}, DefaultPolicy)

	keys := store.List()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("expected [a b], got %v", keys)
	}

	meta := store.Metadata().Get("b")
	if meta.Kind != KindBytes {
		t.Errorf("expected kind bytes, got %q", meta.Kind)
	}
	if !meta.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on overwrite: %v -> %v", first.CreatedAt, meta.CreatedAt)
	}
	if !meta.UserPresence {
		t.Error("expected user presence recorded")
	}
	if a := store.Metadata().Get("a"); a.UserPresence || a.Accessible != AccessibleWhenUnlocked {
		t.Errorf("unexpected metadata for a: %+v", a)
	}
}

func TestMetadataStorePersistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")

	ms1, _ := NewMetadataStore(path)
	ms1.Touch("key1", KindText, DefaultPolicy, nowUTC())

	ms2, _ := NewMetadataStore(path)
	meta := ms2.Get("key1")
	if meta == nil {
		t.Fatal("expected metadata after reload")
	}
	if meta.Kind != KindText {
		t.Errorf("expected text, got %q", meta.Kind)
	}
}

func TestMetadataStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	os.WriteFile(path, []byte("{not json"), 0600)

	ms, err := NewMetadataStore(path)
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	if len(ms.Keys()) != 0 {
		t.Errorf("expected empty store, got %v", ms.Keys())
	}
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	return string(data)
}

func nowUTC() time.Time { return time.Now().UTC() }
