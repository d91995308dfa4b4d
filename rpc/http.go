package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"creditbridge/core/events"
	"creditbridge/core/runtime"
	"creditbridge/core/types"
	"creditbridge/crypto"
	"creditbridge/native/bank"
	"creditbridge/native/bridge"
	"creditbridge/observability"
	"creditbridge/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	limiterIdleTTL  = 10 * time.Minute
)

const (
	codeParseError       = -32700
	codeInvalidRequest   = -32600
	codeMethodNotFound   = -32601
	codeInvalidParams    = -32602
	codeUnauthorized     = -32001
	codeForbidden        = -32003
	codeServerError      = -32000
	codeSequenceMismatch = -32010
	codeRateLimited      = -32020
	codeBridgeRejected   = -32050
	codeInsufficientFund = -32051
)

const (
	ScopeAdmin  = "bridge:admin"
	ScopeFaucet = "bridge:faucet"
)

// Backend is the runtime surface the server drives.
type Backend interface {
	Submit(ctx context.Context, env *types.Envelope) (*runtime.Receipt, error)
	Query(ctx context.Context, raw []byte) (json.RawMessage, error)
	Migrate(ctx context.Context) (*runtime.Receipt, error)
	Fund(ctx context.Context, addr string, coins []types.Coin) error
	Balances(addr string) ([]types.Coin, error)
	Sequence(addr string) (uint64, error)
	Instantiated() (bool, error)
	ChainID() string
	Contract() string
	LastBlockTime() uint64
}

// Subscriber supplies committed events to websocket clients.
type Subscriber interface {
	Subscribe(buffer int) (<-chan *types.Event, func())
}

// ServerConfig tunes the JSON-RPC server.
type ServerConfig struct {
	Prefix            crypto.AddressPrefix
	RequestsPerMinute int
	Burst             int
	JWTSecret         []byte
	JWTIssuer         string
	EnableFaucet      bool
	// TrustProxyHeaders keys rate limits on X-Forwarded-For. Enable only
	// behind a proxy that overwrites the header.
	TrustProxyHeaders bool
	Logger            *slog.Logger
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type Server struct {
	backend Backend
	events  Subscriber
	cfg     ServerConfig
	logger  *slog.Logger
	auth    *operatorAuth

	mu       sync.Mutex
	limiters map[string]*clientLimiter
	clockNow func() time.Time
}

// NewServer builds a server over backend. events may be nil, in which case
// the websocket stream is not mounted.
func NewServer(backend Backend, events Subscriber, cfg ServerConfig) *Server {
	if cfg.Prefix == "" {
		cfg.Prefix = crypto.DefaultPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		backend:  backend,
		events:   events,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "rpc")),
		auth:     newOperatorAuth(cfg.JWTSecret, cfg.JWTIssuer),
		limiters: make(map[string]*clientLimiter),
		clockNow: time.Now,
	}
}

// Handler returns the instrumented router serving /rpc, /ws/events,
// /metrics and /healthz.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handle)
	r.Post("/", s.handle)
	if s.events != nil {
		r.Get("/ws/events", s.handleEventsWS)
	}
	return otelhttp.NewHandler(r, "bridged.rpc")
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	method := "unknown"
	defer func() {
		observability.ModuleMetrics().Observe("bridge", method, rec.status, time.Since(start))
	}()

	rec.Header().Set("Content-Type", "application/json")
	if !s.allowSource(s.clientSource(r)) {
		observability.ModuleMetrics().RecordThrottle("bridge", "rate_limit")
		writeError(rec, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	reader := http.MaxBytesReader(rec, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()
	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(rec, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(rec, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(rec, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(rec, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(rec, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}
	method = req.Method

	switch req.Method {
	case "bridge_execute":
		s.handleExecute(rec, r, req)
	case "bridge_query":
		s.handleQuery(rec, r, req)
	case "bridge_balance":
		s.handleBalance(rec, r, req)
	case "bridge_sequence":
		s.handleSequence(rec, r, req)
	case "bridge_status":
		s.handleStatus(rec, r, req)
	case "bridge_migrate":
		if authErr := s.auth.require(r, ScopeAdmin); authErr != nil {
			s.refuseOperator(rec, r, req, authErr)
			return
		}
		s.handleMigrate(rec, r, req)
	case "bridge_fund":
		if !s.cfg.EnableFaucet {
			writeError(rec, http.StatusNotFound, req.ID, codeMethodNotFound, "faucet disabled", nil)
			return
		}
		if authErr := s.auth.require(r, ScopeFaucet); authErr != nil {
			s.refuseOperator(rec, r, req, authErr)
			return
		}
		s.handleFund(rec, r, req)
	default:
		writeError(rec, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

// refuseOperator rejects an operator call. The bearer token is never logged.
func (s *Server) refuseOperator(w http.ResponseWriter, r *http.Request, req *RPCRequest, authErr *RPCError) {
	s.logger.Warn("operator request refused",
		slog.String("method", req.Method),
		slog.String("source", s.clientSource(r)),
		slog.Int("code", authErr.Code),
		logging.MaskField("authorization", r.Header.Get("Authorization")))
	writeError(w, authStatus(authErr), req.ID, authErr.Code, authErr.Message, authErr.Data)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeBackendError maps runtime and contract failures onto JSON-RPC codes.
func (s *Server) writeBackendError(w http.ResponseWriter, id interface{}, err error) {
	if be, ok := bridge.AsError(err); ok {
		writeError(w, http.StatusBadRequest, id, codeBridgeRejected, be.Message,
			BridgeErrorData{Code: be.Code, Kind: be.Kind, Details: be.Details})
		return
	}
	switch {
	case errors.Is(err, bank.ErrSequenceMismatch):
		writeError(w, http.StatusConflict, id, codeSequenceMismatch, err.Error(), nil)
	case errors.Is(err, bank.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, id, codeInsufficientFund, err.Error(), nil)
	case errors.Is(err, runtime.ErrChainMismatch),
		errors.Is(err, runtime.ErrContractMismatch),
		errors.Is(err, runtime.ErrSenderRequired),
		errors.Is(err, types.ErrEnvelopeUnsigned):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	default:
		if code := bridge.Code(err); code != "INTERNAL" {
			writeError(w, http.StatusBadRequest, id, codeBridgeRejected, err.Error(), BridgeErrorData{Code: code})
			return
		}
		s.logger.Error("rpc backend failure", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", nil)
	}
}

// allowSource applies the per-client token bucket. A non-positive
// RequestsPerMinute disables limiting.
func (s *Server) allowSource(source string) bool {
	if s.cfg.RequestsPerMinute <= 0 {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	now := s.clockNow()
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(s.limiters, id)
		}
	}
	entry, ok := s.limiters[source]
	if !ok {
		burst := s.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(float64(s.cfg.RequestsPerMinute)/60.0), burst)}
		s.limiters[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (s *Server) clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); s.cfg.TrustProxyHeaders && forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

var _ Subscriber = (*events.Broadcaster)(nil)
