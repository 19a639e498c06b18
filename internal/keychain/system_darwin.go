//go:build darwin

package keychain

// NewSystemBackend returns the macOS Keychain backend.
func NewSystemBackend(service string) Backend {
	return NewKeychainBackend(service)
}
