package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"splitledger/core"
	"splitledger/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
	codeNotFound       = -32022
	codeForbidden      = -32023
	codeConflict       = -32024
)

// Config carries the server's transport-level settings. Auth here is
// admission control for the RPC endpoint, not principal identity: callers
// name the acting principal in the request parameters, which the host trusts
// once the request is admitted.
type Config struct {
	AuthToken         string
	JWTSecret         string
	RequestsPerMinute float64
	Burst             int
}

// Server exposes the node's operations as JSON-RPC 2.0 over HTTP, with a
// WebSocket notification stream and Prometheus metrics on the same listener.
type Server struct {
	node   *core.Node
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
}

// NewServer creates an RPC server for the given node.
func NewServer(node *core.Node, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 600
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 50
	}
	return &Server{
		node:     node,
		cfg:      cfg,
		logger:   logger,
		visitors: make(map[string]*rate.Limiter),
	}
}

// Router returns the HTTP handler serving the RPC endpoint, health check,
// metrics, and event stream.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.Post("/", s.handle)
	return r
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	// ID is kept raw so numeric and string ids are both accepted and echoed
	// back unchanged.
	ID json.RawMessage `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
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

type methodSpec struct {
	module      string
	requireAuth bool
	handler     func(*Server, http.ResponseWriter, *http.Request, *RPCRequest)
}

var methodTable = map[string]methodSpec{
	"split_create":         {module: "split", requireAuth: true, handler: (*Server).handleSplitCreate},
	"split_deposit":        {module: "split", requireAuth: true, handler: (*Server).handleSplitDeposit},
	"split_release":        {module: "split", requireAuth: true, handler: (*Server).handleSplitRelease},
	"split_releasePartial": {module: "split", requireAuth: true, handler: (*Server).handleSplitReleasePartial},
	"split_cancel":         {module: "split", requireAuth: true, handler: (*Server).handleSplitCancel},
	"split_refund":         {module: "split", requireAuth: true, handler: (*Server).handleSplitRefund},
	"split_expire":         {module: "split", requireAuth: true, handler: (*Server).handleSplitExpire},
	"split_get":            {module: "split", handler: (*Server).handleSplitGet},
	"split_isFullyFunded":  {module: "split", handler: (*Server).handleSplitIsFullyFunded},
	"rewards_track":        {module: "rewards", requireAuth: true, handler: (*Server).handleRewardsTrack},
	"rewards_trackCreated": {module: "rewards", requireAuth: true, handler: (*Server).handleRewardsTrackCreated},
	"rewards_calculate":    {module: "rewards", handler: (*Server).handleRewardsCalculate},
	"rewards_claim":        {module: "rewards", requireAuth: true, handler: (*Server).handleRewardsClaim},
	"rewards_get":          {module: "rewards", handler: (*Server).handleRewardsGet},
	"verify_submit":        {module: "verify", requireAuth: true, handler: (*Server).handleVerifySubmit},
	"verify_adjudicate":    {module: "verify", requireAuth: true, handler: (*Server).handleVerifyAdjudicate},
	"verify_status":        {module: "verify", handler: (*Server).handleVerifyStatus},
	"verify_get":           {module: "verify", handler: (*Server).handleVerifyGet},
	"ledger_getBalance":    {module: "ledger", handler: (*Server).handleGetBalance},
	"ledger_getConfig":     {module: "ledger", handler: (*Server).handleGetConfig},
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")
	requestID := uuid.NewString()
	logger := s.logger.With("requestId", requestID)

	if !s.allowSource(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported JSON-RPC version", nil)
		return
	}

	spec, ok := methodTable[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method), nil)
		return
	}
	if spec.requireAuth {
		if authErr := s.requireAuth(r); authErr != nil {
			observability.ModuleMetrics().ObserveError(spec.module, req.Method, fmt.Sprintf("%d", authErr.Code))
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}

	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	spec.handler(s, recorder, r, req)
	outcome := "ok"
	if recorder.status >= http.StatusBadRequest {
		outcome = "error"
	}
	observability.ModuleMetrics().ObserveRequest(spec.module, req.Method, outcome, time.Since(start))
	logger.Info("rpc request handled",
		"method", req.Method,
		"status", recorder.status,
		"durationMs", time.Since(start).Milliseconds(),
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) allowSource(source string) bool {
	if source == "" {
		source = "unknown"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.visitors[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RequestsPerMinute/60), s.cfg.Burst)
		s.visitors[source] = limiter
	}
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// --- shared parameter helpers ---

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address: %w", err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("address must be 20 bytes")
	}
	copy(addr[:], raw)
	return addr, nil
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func parsePositiveAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}
