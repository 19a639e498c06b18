package keychain

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/benaskins/keyguard/internal/audit"
)

// SecretMetadata records what was stored under a key and when.
type SecretMetadata struct {
	Kind         ValueKind     `json:"kind"`
	Accessible   Accessibility `json:"accessible,omitempty"`
	UserPresence bool          `json:"user_presence,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// MetadataStore persists secret metadata to a JSON file. The platform
// stores cannot enumerate items without reading them, so listing goes
// through this file.
type MetadataStore struct {
	mu       sync.RWMutex
	path     string
	metadata map[string]*SecretMetadata
}

// NewMetadataStore loads or creates a metadata file.
func NewMetadataStore(path string) (*MetadataStore, error) {
	ms := &MetadataStore{
		path:     path,
		metadata: make(map[string]*SecretMetadata),
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if jsonErr := json.Unmarshal(data, &ms.metadata); jsonErr != nil {
			slog.Warn("corrupt metadata file, starting fresh", "path", path, "error", jsonErr)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	return ms, nil
}

// Get returns a copy of the metadata for a key, or nil if not tracked.
func (ms *MetadataStore) Get(key string) *SecretMetadata {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.metadata[key]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// Touch records a write of kind under key with policy and persists.
func (ms *MetadataStore) Touch(key string, kind ValueKind, policy AccessPolicy, now time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	m, ok := ms.metadata[key]
	if !ok {
		m = &SecretMetadata{CreatedAt: now}
		ms.metadata[key] = m
	}
	m.Kind = kind
	m.Accessible = policy.accessControl().Accessible
	m.UserPresence = policy.RequiresUserPresence()
	m.UpdatedAt = now
	return ms.save()
}

// Delete removes metadata for a key.
func (ms *MetadataStore) Delete(key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.metadata[key]; !ok {
		return nil
	}
	delete(ms.metadata, key)
	return ms.save()
}

// Keys returns the tracked keys, sorted.
func (ms *MetadataStore) Keys() []string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	keys := make([]string, 0, len(ms.metadata))
	for k := range ms.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (ms *MetadataStore) save() error {
	data, err := json.MarshalIndent(ms.metadata, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := ms.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, ms.path)
}

// AuditedStore wraps a Store and adds audit logging and metadata tracking.
// Both the audit logger and the metadata store are optional.
type AuditedStore struct {
	inner     *Store
	audit     *audit.Logger
	metadata  *MetadataStore
	actor     string // "cli" or "daemon"
	requestID string
}

// NewAuditedStore wraps an existing store with audit logging.
func NewAuditedStore(inner *Store, auditLog *audit.Logger, metadata *MetadataStore, actor string) *AuditedStore {
	return &AuditedStore{
		inner:    inner,
		audit:    auditLog,
		metadata: metadata,
		actor:    actor,
	}
}

// WithRequest returns a view of s whose audit entries carry requestID.
func (s *AuditedStore) WithRequest(requestID string) *AuditedStore {
	cp := *s
	cp.requestID = requestID
	return &cp
}

// Set stores v under key.
func (s *AuditedStore) Set(key string, v Value, policy AccessPolicy, opts ...CallOption) error {
	err := s.inner.Set(key, v, policy, opts...)
	kind := ""
	if v != nil {
		kind = string(v.Kind())
	}
	s.log(audit.Entry{Action: audit.ActionSecretWrite, Key: key, Kind: kind}, nil, err)
	if err != nil {
		return fmt.Errorf("audited store set: %w", err)
	}

	if s.metadata != nil {
		if err := s.metadata.Touch(key, v.Kind(), policy, time.Now().UTC()); err != nil {
			return fmt.Errorf("saving metadata: %w", err)
		}
	}
	return nil
}

// Fetch returns the raw bytes stored under key.
func (s *AuditedStore) Fetch(key string, opts ...CallOption) ([]byte, bool, error) {
	data, found, err := s.inner.Fetch(key, false, opts...)
	s.log(audit.Entry{Action: audit.ActionSecretRead, Key: key, Kind: string(KindBytes)}, &found, err)
	if err != nil {
		return nil, false, fmt.Errorf("audited store fetch: %w", err)
	}
	return data, found, nil
}

// FetchText returns the text stored under key.
func (s *AuditedStore) FetchText(key string, opts ...CallOption) (string, bool, error) {
	text, found, err := s.inner.FetchText(key, opts...)
	s.log(audit.Entry{Action: audit.ActionSecretRead, Key: key, Kind: string(KindText)}, &found, err)
	if err != nil {
		return "", false, fmt.Errorf("audited store fetch: %w", err)
	}
	return text, found, nil
}

// FetchFlag returns the boolean stored under key.
func (s *AuditedStore) FetchFlag(key string, opts ...CallOption) (value, ok bool) {
	value, ok = s.inner.FetchFlag(key, opts...)
	s.log(audit.Entry{Action: audit.ActionSecretRead, Key: key, Kind: string(KindFlag)}, &ok, nil)
	return value, ok
}

// LookupFlag returns the boolean stored under key, reporting store and
// authentication failures instead of treating them as absent.
func (s *AuditedStore) LookupFlag(key string, opts ...CallOption) (value, found bool, err error) {
	value, found, err = s.inner.LookupFlag(key, opts...)
	s.log(audit.Entry{Action: audit.ActionSecretRead, Key: key, Kind: string(KindFlag)}, &found, err)
	if err != nil {
		return false, false, fmt.Errorf("audited store fetch: %w", err)
	}
	return value, found, nil
}

// Exists reports whether key is stored without reading it.
func (s *AuditedStore) Exists(key string, opts ...CallOption) (bool, error) {
	found, err := s.inner.Exists(key, opts...)
	s.log(audit.Entry{Action: audit.ActionSecretProbe, Key: key}, &found, err)
	if err != nil {
		return false, fmt.Errorf("audited store exists: %w", err)
	}
	return found, nil
}

// Delete removes key and its metadata.
func (s *AuditedStore) Delete(key string) error {
	err := s.inner.Delete(key)
	s.log(audit.Entry{Action: audit.ActionSecretDelete, Key: key}, nil, err)
	if err != nil {
		return fmt.Errorf("audited store delete: %w", err)
	}

	if s.metadata != nil {
		if err := s.metadata.Delete(key); err != nil {
			return fmt.Errorf("deleting metadata: %w", err)
		}
	}
	return nil
}

// List returns the keys written through this store, as tracked by the
// metadata file.
func (s *AuditedStore) List() []string {
	if s.metadata == nil {
		return nil
	}
	return s.metadata.Keys()
}

// Store returns the wrapped store.
func (s *AuditedStore) Store() *Store {
	return s.inner
}

// Metadata returns the metadata store for direct access.
func (s *AuditedStore) Metadata() *MetadataStore {
	return s.metadata
}

func (s *AuditedStore) log(e audit.Entry, found *bool, err error) {
	if s.audit == nil {
		return
	}
	e.Actor = s.actor
	e.RequestID = s.requestID
	if err != nil {
		e.Error = err.Error()
		e.Status = int32(StatusOf(err))
	} else if found != nil {
		f := *found
		e.Found = &f
	}
	// Audit logging is best-effort: a failure to log should not block the operation.
	if logErr := s.audit.Log(e); logErr != nil {
		slog.Warn("audit log write failed", "path", s.audit.Path(), "error", logErr)
	}
}
