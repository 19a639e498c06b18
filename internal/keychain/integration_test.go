//go:build integration && darwin

package keychain

import (
	"testing"
)

// Integration tests use real macOS Keychain.
// Run with: go test -tags integration ./internal/keychain/
//
// Requires an unlocked login Keychain and an interactive session. Items are
// written without user presence so the run does not block on a prompt.

var integrationPolicy = AccessPolicy{Accessible: AccessibleWhenUnlockedThisDeviceOnly}

func integrationStore() *Store {
	return New(NewKeychainBackend("com.keyguard.test"), WithPrefix("it."))
}

func cleanupIntegration(t *testing.T, s *Store, keys ...string) {
	t.Helper()
	for _, k := range keys {
		s.Delete(k)
	}
}

func TestKeychainSetAndFetch(t *testing.T) {
	s := integrationStore()
	key := "set-fetch"
	defer cleanupIntegration(t, s, key)

	if err := s.SetText(key, "hello-keychain", integrationPolicy); err != nil {
		t.Fatalf("SetText: %v", err)
	}

	val, found, err := s.FetchText(key)
	if err != nil {
		t.Fatalf("FetchText: %v", err)
	}
	if !found || val != "hello-keychain" {
		t.Errorf("expected 'hello-keychain', got %q (found=%v)", val, found)
	}
}

func TestKeychainOverwrite(t *testing.T) {
	s := integrationStore()
	key := "overwrite"
	defer cleanupIntegration(t, s, key)

	s.SetText(key, "first", integrationPolicy)
	s.SetText(key, "second", integrationPolicy)

	val, _, err := s.FetchText(key)
	if err != nil {
		t.Fatalf("FetchText: %v", err)
	}
	if val != "second" {
		t.Errorf("expected 'second', got %q", val)
	}
}

func TestKeychainDeleteAndExists(t *testing.T) {
	s := integrationStore()
	key := "delete"

	s.SetFlag(key, true, integrationPolicy)
	if ok, err := s.Exists(key); err != nil || !ok {
		t.Fatalf("Exists before delete = %v, %v", ok, err)
	}

	if err := s.Delete(key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, found, err := s.Fetch(key, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if found {
		t.Error("expected no item after delete")
	}
}
