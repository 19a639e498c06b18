package keychain

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Store reads and writes secrets through a Backend, one operation at a time.
//
// A Store is safe for concurrent use. Its methods must not be called from
// inside another of its methods (for example from an Observer or a Backend
// callback): the gate is not reentrant and such a call never returns.
type Store struct {
	gate     *Gate
	backend  Backend
	scope    atomic.Pointer[QueryBuilder] // replaced only under gate
	logger   *slog.Logger
	observer Observer
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the namespace prepended to every key.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.updateScope(func(b *QueryBuilder) { b.Prefix = prefix }) }
}

// WithAccessGroup scopes every query to an access group.
func WithAccessGroup(group string) Option {
	return func(s *Store) { s.updateScope(func(b *QueryBuilder) { b.AccessGroup = group }) }
}

// WithSynchronizable marks items for cross-device sync.
func WithSynchronizable(sync bool) Option {
	return func(s *Store) { s.updateScope(func(b *QueryBuilder) { b.Synchronizable = sync }) }
}

// WithLogger sets the logger. The default is slog.Default tagged with
// component=keychain.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithObserver installs an Observer for gate and request events.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		gate:     NewGate(),
		backend:  backend,
		logger:   slog.With("component", "keychain"),
		observer: nopObserver{},
	}
	s.scope.Store(&QueryBuilder{})
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type callOptions struct {
	auth AuthContext
}

// CallOption adjusts a single Store call.
type CallOption func(*callOptions)

// WithAuthContext attaches an already evaluated authentication session to
// the request so the backend does not prompt again.
func WithAuthContext(ctx AuthContext) CallOption {
	return func(o *callOptions) { o.auth = ctx }
}

func collect(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Set stores v under key with the given access policy, replacing any
// existing value. The old item is deleted first; a failed delete is ignored
// and the add still runs.
func (s *Store) Set(key string, v Value, policy AccessPolicy, opts ...CallOption) error {
	data, err := Encode(v)
	if err != nil {
		return fmt.Errorf("storing %q: %w", key, err)
	}
	co := collect(opts)

	g := s.enter(OpSet)
	defer s.leave(g, OpSet, time.Now())

	s.deleteLocked(g, key)

	q := s.scope.Load().AddQuery(key, data, policy, co.auth)
	if st := s.request(g, RequestAdd, q, s.backend.Add); st != StatusSuccess {
		return &StoreError{Op: RequestAdd, Key: key, Status: st}
	}
	return nil
}

// SetBytes stores raw bytes under key.
func (s *Store) SetBytes(key string, data []byte, policy AccessPolicy, opts ...CallOption) error {
	return s.Set(key, Bytes(data), policy, opts...)
}

// SetText stores UTF-8 text under key.
func (s *Store) SetText(key, text string, policy AccessPolicy, opts ...CallOption) error {
	return s.Set(key, Text(text), policy, opts...)
}

// SetFlag stores a boolean under key.
func (s *Store) SetFlag(key string, flag bool, policy AccessPolicy, opts ...CallOption) error {
	return s.Set(key, Flag(flag), policy, opts...)
}

// Fetch returns the bytes stored under key. found is false, with a nil
// error, when no item exists. With asReference the backend is asked for an
// item reference instead of the value, so data is nil when found; use
// FetchRef to get the reference itself.
func (s *Store) Fetch(key string, asReference bool, opts ...CallOption) (data []byte, found bool, err error) {
	res, found, err := s.find(key, asReference, opts)
	return res.Data, found, err
}

// FetchRef returns a reference to the item stored under key without
// reading its value, so it never triggers a user-presence check.
func (s *Store) FetchRef(key string, opts ...CallOption) (*ItemRef, bool, error) {
	res, found, err := s.find(key, true, opts)
	return res.Ref, found, err
}

func (s *Store) find(key string, asReference bool, opts []CallOption) (Result, bool, error) {
	co := collect(opts)

	g := s.enter(OpFetch)
	defer s.leave(g, OpFetch, time.Now())

	q := s.scope.Load().FetchQuery(key, asReference, co.auth)
	var res Result
	st := s.request(g, RequestQuery, q, func(q Query) Status {
		var st Status
		st, res = s.backend.Find(q)
		return st
	})

	switch st {
	case StatusSuccess:
		return res, true, nil
	case StatusItemNotFound:
		return Result{}, false, nil
	default:
		return Result{}, false, &StoreError{Op: RequestQuery, Key: key, Status: st}
	}
}

// FetchText returns the text stored under key. Bytes that are not valid
// UTF-8 yield an error matching ErrInvalidEncoding; the store status is left
// as the backend reported it.
func (s *Store) FetchText(key string, opts ...CallOption) (string, bool, error) {
	data, found, err := s.Fetch(key, false, opts...)
	if err != nil || !found {
		return "", false, err
	}
	text, err := DecodeText(data)
	if err != nil {
		return "", false, fmt.Errorf("fetching %q: %w", key, err)
	}
	return text, true, nil
}

// FetchFlag returns the boolean stored under key. ok is false when there is
// no item, the item is empty, or the store could not be read.
func (s *Store) FetchFlag(key string, opts ...CallOption) (value, ok bool) {
	value, ok, err := s.LookupFlag(key, opts...)
	if err != nil {
		s.logger.Debug("flag fetch failed", "key", key, "error", err)
		return false, false
	}
	return value, ok
}

// LookupFlag is FetchFlag with store failures reported. found is false,
// with a nil error, when there is no item or the item is empty.
func (s *Store) LookupFlag(key string, opts ...CallOption) (value, found bool, err error) {
	data, found, err := s.Fetch(key, false, opts...)
	if err != nil || !found {
		return false, false, err
	}
	value, found = DecodeFlag(data)
	return value, found, nil
}

// Exists reports whether an item is stored under key without reading its
// value.
func (s *Store) Exists(key string, opts ...CallOption) (bool, error) {
	_, found, err := s.FetchRef(key, opts...)
	return found, err
}

// Delete removes the item stored under key. A missing item is not an error.
func (s *Store) Delete(key string) error {
	g := s.enter(OpDelete)
	defer s.leave(g, OpDelete, time.Now())

	q := s.scope.Load().DeleteQuery(key)
	st := s.request(g, RequestDelete, q, s.backend.Delete)
	if st != StatusSuccess && st != StatusItemNotFound {
		return &StoreError{Op: RequestDelete, Key: key, Status: st}
	}
	return nil
}

// SetScope changes the access group and synchronizable attributes applied
// to subsequent queries. It waits for any running operation to finish.
func (s *Store) SetScope(accessGroup string, synchronizable bool) {
	g := s.enter(OpScope)
	defer s.leave(g, OpScope, time.Now())

	s.updateScope(func(b *QueryBuilder) {
		b.AccessGroup = accessGroup
		b.Synchronizable = synchronizable
	})
	s.logger.Info("scope updated", "access_group", accessGroup, "synchronizable", synchronizable)
}

// Scope returns the current query builder settings. It does not wait for
// the gate, so a SetScope still waiting to enter is not yet visible.
func (s *Store) Scope() QueryBuilder {
	return *s.scope.Load()
}

func (s *Store) updateScope(fn func(*QueryBuilder)) {
	b := *s.scope.Load()
	fn(&b)
	s.scope.Store(&b)
}

// LastStatus returns the status of the most recent backend request.
func (s *Store) LastStatus() Status {
	return s.gate.LastRecord().Status
}

// LastQuery returns a copy of the most recent backend query. It includes the
// value bytes of the last add; use Query.Redacted before logging it.
func (s *Store) LastQuery() Query {
	return s.gate.LastRecord().Query
}

// Busy reports whether an operation currently holds the gate.
func (s *Store) Busy() bool {
	return s.gate.State() == GateBusy
}

func (s *Store) enter(op string) *Guard {
	start := time.Now()
	g := s.gate.Enter()
	s.observer.ObserveWait(op, time.Since(start))
	return g
}

func (s *Store) leave(g *Guard, op string, since time.Time) {
	g.Release()
	s.observer.ObserveHold(op, time.Since(since))
}

func (s *Store) request(g *Guard, name string, q Query, do func(Query) Status) Status {
	g.Begin(q)
	st := do(q)
	g.Finish(st)
	s.observer.ObserveRequest(name, st)
	return st
}

func (s *Store) deleteLocked(g *Guard, key string) {
	q := s.scope.Load().DeleteQuery(key)
	st := s.request(g, RequestDelete, q, s.backend.Delete)
	if st != StatusSuccess && st != StatusItemNotFound {
		s.logger.Debug("ignoring delete failure before add", "key", key, "status", st)
	}
}
