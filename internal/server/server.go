// Package server exposes differential evolution runs as jobs over HTTP and
// JSON-RPC 2.0.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Median-Group/differential-evolution2/internal/config"
	apperrors "github.com/Median-Group/differential-evolution2/internal/errors"
	"github.com/Median-Group/differential-evolution2/internal/logging"
	"github.com/Median-Group/differential-evolution2/internal/metrics"
	"github.com/Median-Group/differential-evolution2/internal/optimization/benchmarks"
)

// Logger defines the logging interface used by the server
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
	Zap(name string) *zap.Logger
}

// Server implements the HTTP and JSON-RPC server for the optimization service.
// It manages optimization jobs and provides endpoints to start, monitor, and cancel them.
type Server struct {
	cfg     *config.Config
	logger  Logger
	metrics *metrics.Recorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	slots  chan struct{}

	jobs map[string]*Job
	mu   sync.RWMutex // Protects jobs and every Job's exported fields
}

// NewServer creates a new server instance. Running jobs are bounded by
// cfg.Optimization.MaxConcurrentJobs.
func NewServer(cfg *config.Config, logger Logger, recorder *metrics.Recorder) *Server {
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: recorder,
		ctx:     ctx,
		cancel:  cancel,
		slots:   make(chan struct{}, max(cfg.Optimization.MaxConcurrentJobs, 1)),
		jobs:    make(map[string]*Job),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Get("/functions", s.handleFunctions)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Close cancels every running job and waits for them to finish.
func (s *Server) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleOptimize handles POST /api/v1/optimize.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Wrap(err, "invalid request body").
			WithStatus(http.StatusBadRequest).WithOperation("optimize"))
		return
	}

	job, err := s.startJob(req)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"optimization_id": job.ID,
		"status":          StatusPending,
		"seed":            job.Seed,
	})
}

// handleStatus handles GET /api/v1/status/{id}. Pass ?history=true for the
// per-generation incumbents.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.job(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(job, r.URL.Query().Get("history") == "true"))
}

// handleCancel handles DELETE /api/v1/optimization/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.cancelJob(chi.URLParam(r, "id")); err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}

// FunctionInfo describes a registered objective.
type FunctionInfo struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Lower       float64 `json:"lower"`
	Upper       float64 `json:"upper"`
	MinDim      int     `json:"min_dimensions"`
}

func functionInfos() []FunctionInfo {
	all := benchmarks.All()
	out := make([]FunctionInfo, len(all))
	for i, f := range all {
		out[i] = FunctionInfo{
			Name:        f.Name,
			Description: f.Description,
			Lower:       f.Lower,
			Upper:       f.Upper,
			MinDim:      f.MinDim,
		}
	}
	return out
}

// handleFunctions handles GET /api/v1/functions.
func (s *Server) handleFunctions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, functionInfos())
}

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jobRef struct {
	ID      string `json:"optimization_id"`
	History bool   `json:"history,omitempty"`
}

// decodeParams accepts params either as an object or as a one-element array
// holding the object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fmt.Errorf("missing required parameters")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			return fmt.Errorf("missing required parameters")
		}
		raw = list[0]
	}
	return json.Unmarshal(raw, v)
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "optimization.start":
		result, err = s.rpcStart(request.Params)
	case "optimization.status":
		result, err = s.rpcStatus(request.Params)
	case "optimization.cancel":
		result, err = s.rpcCancel(request.Params)
	case "optimization.functions":
		result = functionInfos()
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := rpcServerError
		if apperrors.StatusCode(err) == http.StatusBadRequest {
			code = rpcInvalidParams
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

func (s *Server) rpcStart(params json.RawMessage) (interface{}, error) {
	var req OptimizeRequest
	if err := decodeParams(params, &req); err != nil {
		return nil, apperrors.Wrap(err, "invalid parameters").WithStatus(http.StatusBadRequest)
	}
	job, err := s.startJob(req)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"optimization_id": job.ID,
		"status":          StatusPending,
		"seed":            job.Seed,
	}, nil
}

func (s *Server) rpcStatus(params json.RawMessage) (interface{}, error) {
	var ref jobRef
	if err := decodeParams(params, &ref); err != nil {
		return nil, apperrors.Wrap(err, "invalid parameters").WithStatus(http.StatusBadRequest)
	}
	if ref.ID == "" {
		return nil, apperrors.BadRequest("optimization_id is required")
	}
	job, err := s.job(ref.ID)
	if err != nil {
		return nil, err
	}
	return s.view(job, ref.History), nil
}

func (s *Server) rpcCancel(params json.RawMessage) (interface{}, error) {
	var ref jobRef
	if err := decodeParams(params, &ref); err != nil {
		return nil, apperrors.Wrap(err, "invalid parameters").WithStatus(http.StatusBadRequest)
	}
	if ref.ID == "" {
		return nil, apperrors.BadRequest("optimization_id is required")
	}
	if err := s.cancelJob(ref.ID); err != nil {
		return nil, err
	}
	return map[string]string{"status": "cancellation requested"}, nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}
