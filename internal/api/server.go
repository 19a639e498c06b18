package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/benaskins/keyguard/internal/keychain"
	"github.com/benaskins/keyguard/internal/logbuf"
)

// RequestIDHeader carries the per-request ID echoed back to clients and
// written to audit entries.
const RequestIDHeader = "X-Request-ID"

// Options configures a Server.
type Options struct {
	// RateLimit is the sustained requests per second; 0 disables limiting.
	RateLimit float64
	RateBurst int
	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
	// Logs, when set, is served at /v1/logs.
	Logs *logbuf.Ring
}

// Server serves the keyguard REST API over a Unix socket. All requests go
// through one Store, so clients are serialized by its gate.
type Server struct {
	store    *keychain.AuditedStore
	listener net.Listener
	server   *http.Server
	limiter  *rate.Limiter
	logs     *logbuf.Ring
	logger   *slog.Logger
}

// NewServer creates an API server backed by the given store.
func NewServer(store *keychain.AuditedStore, opts Options) *Server {
	s := &Server{
		store:  store,
		logs:   opts.Logs,
		logger: slog.With("component", "api"),
	}
	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("PUT /v1/secrets/{key...}", s.putSecret)
	mux.HandleFunc("GET /v1/secrets/{key...}", s.getSecret)
	mux.HandleFunc("DELETE /v1/secrets/{key...}", s.deleteSecret)
	mux.HandleFunc("GET /v1/exists/{key...}", s.secretExists)
	mux.HandleFunc("GET /v1/secrets", s.listSecrets)
	mux.HandleFunc("GET /v1/diagnostics", s.diagnostics)
	mux.HandleFunc("GET /v1/health", s.health)
	if opts.Logs != nil {
		mux.HandleFunc("GET /v1/logs", s.recentLogs)
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	s.server = &http.Server{Handler: s.middleware(mux)}
	return s
}

// ListenUnix starts the server on a Unix socket.
func (s *Server) ListenUnix(path string) error {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("API listening", "socket", path)
	return s.server.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.listener = ln
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

type ctxKey struct{}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		if s.limiter != nil && !s.limiter.Allow() {
			s.logger.Warn("rate limited", "request_id", id, "path", r.URL.Path)
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) storeFor(r *http.Request) *keychain.AuditedStore {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return s.store.WithRequest(id)
}

// SecretRequest is the body of PUT /v1/secrets/{key}.
type SecretRequest struct {
	Kind   string      `json:"kind"`
	Data   []byte      `json:"data,omitempty"`
	Text   *string     `json:"text,omitempty"`
	Flag   *bool       `json:"flag,omitempty"`
	Policy *PolicySpec `json:"policy,omitempty"`
}

// PolicySpec is the wire form of an access policy. Omitted means the
// default policy.
type PolicySpec struct {
	Accessible   string `json:"accessible,omitempty"`
	UserPresence bool   `json:"user_presence"`
}

// SecretResponse is the body returned by GET /v1/secrets/{key}.
type SecretResponse struct {
	Key  string  `json:"key"`
	Kind string  `json:"kind"`
	Data []byte  `json:"data,omitempty"`
	Text *string `json:"text,omitempty"`
	Flag *bool   `json:"flag,omitempty"`
}

func (req SecretRequest) value() (keychain.Value, error) {
	kind, err := keychain.ParseValueKind(req.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case keychain.KindText:
		if req.Text == nil {
			return nil, errors.New("text kind requires a text field")
		}
		return keychain.Text(*req.Text), nil
	case keychain.KindFlag:
		if req.Flag == nil {
			return nil, errors.New("flag kind requires a flag field")
		}
		return keychain.Flag(*req.Flag), nil
	default:
		return keychain.Bytes(req.Data), nil
	}
}

func (req SecretRequest) policy() keychain.AccessPolicy {
	if req.Policy == nil {
		return keychain.DefaultPolicy
	}
	p := keychain.AccessPolicy{Accessible: keychain.Accessibility(req.Policy.Accessible)}
	if req.Policy.UserPresence {
		p.Flags |= keychain.UserPresence
	}
	return p
}

func (s *Server) putSecret(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req SecretRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
		return
	}
	v, err := req.value()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.storeFor(r).Set(key, v, req.policy()); err != nil {
		s.writeError(w, key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSecret(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	kind, err := keychain.ParseValueKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	store := s.storeFor(r)
	resp := SecretResponse{Key: key, Kind: string(kind)}
	var found bool

	switch kind {
	case keychain.KindText:
		var text string
		text, found, err = store.FetchText(key)
		resp.Text = &text
	case keychain.KindFlag:
		var flag bool
		flag, found, err = store.LookupFlag(key)
		resp.Flag = &flag
	default:
		resp.Data, found, err = store.Fetch(key)
	}

	if err != nil {
		s.writeError(w, key, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "secret not found: " + key})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deleteSecret(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.storeFor(r).Delete(key); err != nil {
		s.writeError(w, key, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) secretExists(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	ok, err := s.storeFor(r).Exists(key)
	if err != nil {
		s.writeError(w, key, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": ok})
}

func (s *Server) listSecrets(w http.ResponseWriter, r *http.Request) {
	keys := s.store.List()
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"keys": keys})
}

// Diagnostics is the body of GET /v1/diagnostics.
type Diagnostics struct {
	LastStatus     int32          `json:"last_status"`
	LastStatusText string         `json:"last_status_text"`
	LastQuery      keychain.Query `json:"last_query"`
	Busy           bool           `json:"busy"`
	Prefix         string         `json:"prefix"`
	AccessGroup    string         `json:"access_group,omitempty"`
	Synchronizable bool           `json:"synchronizable"`
}

func (s *Server) diagnostics(w http.ResponseWriter, r *http.Request) {
	inner := s.store.Store()
	st := inner.LastStatus()
	scope := inner.Scope()
	writeJSON(w, http.StatusOK, Diagnostics{
		LastStatus:     int32(st),
		LastStatusText: st.String(),
		LastQuery:      inner.LastQuery().Redacted(),
		Busy:           inner.Busy(),
		Prefix:         scope.Prefix,
		AccessGroup:    scope.AccessGroup,
		Synchronizable: scope.Synchronizable,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) recentLogs(w http.ResponseWriter, r *http.Request) {
	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be a non-negative integer"})
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, map[string][]string{"lines": s.logs.Tail(n)})
}

func (s *Server) writeError(w http.ResponseWriter, key string, err error) {
	var se *keychain.StoreError
	switch {
	case errors.Is(err, keychain.ErrInvalidEncoding):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
	case errors.Is(err, keychain.ErrAuthentication):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error(), "status": keychain.StatusOf(err)})
	case errors.As(err, &se):
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "status": se.Status})
	default:
		s.logger.Error("request failed", "key", key, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
