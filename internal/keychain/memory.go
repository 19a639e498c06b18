package keychain

import (
	"sort"
	"sync"

	"github.com/awnumar/memguard"
)

// Authorizer decides whether a read of an item protected by control may
// proceed. auth is the caller's AuthContext, possibly nil.
type Authorizer func(control AccessControl, auth AuthContext) Status

// MemoryBackend is an in-process Backend. Values are sealed in memguard
// enclaves while stored. It is used in tests and where no platform store
// is available; contents do not survive the process.
type MemoryBackend struct {
	mu        sync.Mutex
	items     []*memoryItem
	authorize Authorizer
	failures  map[string]Status
}

type memoryItem struct {
	account        string
	accessGroup    string
	synchronizable bool
	control        AccessControl
	value          *memguard.Enclave // nil for an empty value
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{failures: make(map[string]Status)}
}

// SetAuthorizer installs the check run before returning the value of an
// item that requires user presence. Without one, reads are allowed.
func (b *MemoryBackend) SetAuthorizer(fn Authorizer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authorize = fn
}

// FailNext makes the next request of the given kind (RequestAdd,
// RequestQuery, RequestDelete) return st without touching the store.
func (b *MemoryBackend) FailNext(request string, st Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[request] = st
}

// Accounts returns the stored account names, sorted. An account stored in
// several access groups appears once per item.
func (b *MemoryBackend) Accounts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	accounts := make([]string, 0, len(b.items))
	for _, it := range b.items {
		accounts = append(accounts, it.account)
	}
	sort.Strings(accounts)
	return accounts
}

func (b *MemoryBackend) Add(q Query) Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.injected(RequestAdd); ok {
		return st
	}
	if !validClass(q) || q.Account() == "" {
		return StatusParam
	}

	sync, _ := q[AttrSynchronizable].(bool)
	item := &memoryItem{
		account:        q.Account(),
		accessGroup:    q.AccessGroup(),
		synchronizable: sync,
	}
	if ac, ok := q[AttrAccessControl].(AccessControl); ok {
		item.control = ac
	}
	for _, it := range b.items {
		if it.account == item.account && it.accessGroup == item.accessGroup && it.synchronizable == item.synchronizable {
			return StatusDuplicateItem
		}
	}

	if data, _ := q[AttrValueData].([]byte); len(data) > 0 {
		// NewEnclave wipes its argument.
		item.value = memguard.NewEnclave(append([]byte(nil), data...))
	}
	b.items = append(b.items, item)
	return StatusSuccess
}

func (b *MemoryBackend) Find(q Query) (Status, Result) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.injected(RequestQuery); ok {
		return st, Result{}
	}
	if !validClass(q) {
		return StatusParam, Result{}
	}

	var item *memoryItem
	for _, it := range b.items {
		if matches(it, q) {
			item = it
			break
		}
	}
	if item == nil {
		return StatusItemNotFound, Result{}
	}

	var res Result
	if ref, _ := q[AttrReturnRef].(bool); ref {
		res.Ref = &ItemRef{Account: item.account, AccessGroup: item.accessGroup}
	}
	if data, _ := q[AttrReturnData].(bool); data {
		if item.control.Flags&(UserPresence|BiometryAny|DevicePasscode) != 0 && b.authorize != nil {
			if st := b.authorize(item.control, q[AttrAuthContext]); st != StatusSuccess {
				return st, Result{}
			}
		}
		value, err := open(item.value)
		if err != nil {
			return StatusIO, Result{}
		}
		res.Data = value
	}
	return StatusSuccess, res
}

func (b *MemoryBackend) Delete(q Query) Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.injected(RequestDelete); ok {
		return st
	}
	if !validClass(q) {
		return StatusParam
	}

	kept := b.items[:0]
	removed := 0
	for _, it := range b.items {
		if matches(it, q) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	for i := len(kept); i < len(b.items); i++ {
		b.items[i] = nil
	}
	b.items = kept
	if removed == 0 {
		return StatusItemNotFound
	}
	return StatusSuccess
}

func (b *MemoryBackend) injected(request string) (Status, bool) {
	st, ok := b.failures[request]
	if ok {
		delete(b.failures, request)
	}
	return st, ok
}

func validClass(q Query) bool {
	class, ok := q[AttrClass]
	return !ok || class == ClassGenericPassword
}

// matches applies Keychain lookup rules: an absent synchronizable attribute
// only matches items that are not synchronized.
func matches(it *memoryItem, q Query) bool {
	if acct, ok := q[AttrAccount]; ok && acct != it.account {
		return false
	}
	if group := q.AccessGroup(); group != "" && group != it.accessGroup {
		return false
	}
	switch v := q[AttrSynchronizable].(type) {
	case nil:
		return !it.synchronizable
	case bool:
		return v == it.synchronizable
	case string:
		return v == SynchronizableAny
	}
	return false
}

func open(e *memguard.Enclave) ([]byte, error) {
	if e == nil {
		return []byte{}, nil
	}
	lb, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer lb.Destroy()
	return append([]byte(nil), lb.Bytes()...), nil
}
