package keychain

import (
	"encoding/base64"
	"errors"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// KeyringBackend stores items in the OS keyring (Secret Service on Linux,
// Credential Manager on Windows, Keychain on macOS) through go-keyring.
//
// The keyring has no access-control objects or sync flags: the access group,
// when present, selects the keyring service, and the access policy is
// enforced only as far as the OS keyring itself locks its contents. Values
// are base64-encoded because the keyring holds strings.
type KeyringBackend struct {
	service string
	logger  *slog.Logger
}

// NewKeyringBackend creates a backend storing items under service.
func NewKeyringBackend(service string) *KeyringBackend {
	return &KeyringBackend{
		service: service,
		logger:  slog.With("component", "keyring"),
	}
}

func (b *KeyringBackend) serviceFor(q Query) string {
	if group := q.AccessGroup(); group != "" {
		return group
	}
	return b.service
}

func (b *KeyringBackend) Add(q Query) Status {
	if !validClass(q) || q.Account() == "" {
		return StatusParam
	}
	service := b.serviceFor(q)

	_, err := keyring.Get(service, q.Account())
	switch {
	case err == nil:
		return StatusDuplicateItem
	case !errors.Is(err, keyring.ErrNotFound):
		return b.status("get", err)
	}

	data, _ := q[AttrValueData].([]byte)
	if err := keyring.Set(service, q.Account(), base64.StdEncoding.EncodeToString(data)); err != nil {
		return b.status("set", err)
	}
	return StatusSuccess
}

func (b *KeyringBackend) Find(q Query) (Status, Result) {
	if !validClass(q) || q.Account() == "" {
		return StatusParam, Result{}
	}
	service := b.serviceFor(q)

	encoded, err := keyring.Get(service, q.Account())
	if err != nil {
		return b.status("get", err), Result{}
	}

	var res Result
	if ref, _ := q[AttrReturnRef].(bool); ref {
		res.Ref = &ItemRef{Account: q.Account(), AccessGroup: q.AccessGroup()}
	}
	if want, _ := q[AttrReturnData].(bool); want {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return StatusInvalidEncoding, Result{}
		}
		res.Data = data
	}
	return StatusSuccess, res
}

func (b *KeyringBackend) Delete(q Query) Status {
	if !validClass(q) || q.Account() == "" {
		return StatusParam
	}
	if err := keyring.Delete(b.serviceFor(q), q.Account()); err != nil {
		return b.status("delete", err)
	}
	return StatusSuccess
}

func (b *KeyringBackend) status(op string, err error) Status {
	if errors.Is(err, keyring.ErrNotFound) {
		return StatusItemNotFound
	}
	b.logger.Warn("keyring request failed", "op", op, "service", b.service, "error", err)
	return StatusIO
}
