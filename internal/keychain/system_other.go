//go:build !darwin

package keychain

// NewSystemBackend returns the OS keyring backend. The macOS Keychain is
// not available outside of macOS; the keyring (Secret Service, Credential
// Manager) is the closest platform store.
func NewSystemBackend(service string) Backend {
	if service == "" {
		service = ServiceName
	}
	return NewKeyringBackend(service)
}
