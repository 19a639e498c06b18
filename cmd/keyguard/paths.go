package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/benaskins/keyguard/internal/audit"
	"github.com/benaskins/keyguard/internal/config"
	"github.com/benaskins/keyguard/internal/keychain"
)

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func loadConfig() (*config.Config, error) {
	return config.Load(resolvedConfigPath())
}

// newBackend returns the backend named by the config.
func newBackend(cfg *config.Config) (keychain.Backend, error) {
	switch cfg.Backend {
	case config.BackendSystem:
		return keychain.NewSystemBackend(cfg.Service), nil
	case config.BackendKeyring:
		return keychain.NewKeyringBackend(cfg.Service), nil
	case config.BackendMemory:
		return keychain.NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// openStore builds the audited store described by cfg. The returned close
// function releases the audit log.
func openStore(cfg *config.Config, actor string, opts ...keychain.Option) (*keychain.AuditedStore, func(), error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts = append([]keychain.Option{
		keychain.WithPrefix(cfg.Prefix),
		keychain.WithAccessGroup(cfg.AccessGroup),
		keychain.WithSynchronizable(cfg.Synchronizable),
	}, opts...)
	store := keychain.New(backend, opts...)

	var auditLog *audit.Logger
	if cfg.AuditLog != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.AuditLog), 0700); err != nil {
			return nil, nil, fmt.Errorf("creating audit dir: %w", err)
		}
		if auditLog, err = audit.NewLogger(cfg.AuditLog); err != nil {
			return nil, nil, err
		}
	}

	var meta *keychain.MetadataStore
	if cfg.MetadataPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.MetadataPath), 0700); err != nil {
			return nil, nil, fmt.Errorf("creating metadata dir: %w", err)
		}
		if meta, err = keychain.NewMetadataStore(cfg.MetadataPath); err != nil {
			return nil, nil, err
		}
	}

	closeFn := func() {
		if auditLog != nil {
			auditLog.Close()
		}
	}
	return keychain.NewAuditedStore(store, auditLog, meta, actor), closeFn, nil
}
