package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tliron/commonlog"

	"github.com/chazu/lalg/vm"
)

// Defaults for the HTTP service.
const (
	DefaultWorkers  = 4
	DefaultMaxSteps = 10_000_000

	maxRequestBytes = 1 << 20
	contentTypeCBOR = "application/cbor"
	contentTypeJSON = "application/json"
)

// Server is the HTTP compile/run service.
type Server struct {
	cfg      serverConfig
	pool     *WorkerPool
	mux      *http.ServeMux
	upgrader websocket.Upgrader
	log      commonlog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	workers      int
	maxSteps     int64
	maxCallDepth int
	idleTimeout  time.Duration
}

// WithWorkers sets how many programs may run at once.
func WithWorkers(n int) ServerOption {
	return func(c *serverConfig) { c.workers = n }
}

// WithMaxSteps sets the step ceiling for every run. Requests may ask for
// less, never more.
func WithMaxSteps(n int64) ServerOption {
	return func(c *serverConfig) { c.maxSteps = n }
}

// WithMaxCallDepth limits nested calls in every run.
func WithMaxCallDepth(n int) ServerOption {
	return func(c *serverConfig) { c.maxCallDepth = n }
}

// WithIdleTimeout sets how long an interactive session may wait for a
// client message.
func WithIdleTimeout(d time.Duration) ServerOption {
	return func(c *serverConfig) { c.idleTimeout = d }
}

// New creates a Server and starts its worker pool.
func New(opts ...ServerOption) *Server {
	cfg := serverConfig{
		workers:      DefaultWorkers,
		maxSteps:     DefaultMaxSteps,
		maxCallDepth: vm.DefaultMaxCallDepth,
		idleTimeout:  5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxSteps <= 0 {
		cfg.maxSteps = DefaultMaxSteps
	}

	s := &Server{
		cfg:  cfg,
		pool: NewWorkerPool(cfg.workers),
		mux:  http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: commonlog.GetLogger("lalg.server"),
	}

	s.mux.HandleFunc("POST /v1/compile", s.handleCompile)
	s.mux.HandleFunc("POST /v1/run", s.handleRun)
	s.mux.HandleFunc("GET /v1/session", s.handleSession)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, "ok\n")
	})

	return s
}

// Handler returns the service's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *Server) ListenAndServe(addr string) error {
	s.log.Noticef("LALG service listening on %s", addr)
	s.log.Noticef("  compile: POST http://%s/v1/compile", addr)
	s.log.Noticef("  run:     POST http://%s/v1/run", addr)
	s.log.Noticef("  session: ws://%s/v1/session", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// Stop shuts down the worker pool.
func (s *Server) Stop() {
	s.pool.Stop()
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	c := codecFor(r)
	var req CompileRequest
	if err := c.decode(w, r, &req); err != nil {
		c.write(w, http.StatusBadRequest, &CompileResponse{Error: errorInfo(err)})
		return
	}
	resp := compile(req.Source)
	status := http.StatusOK
	if resp.Error != nil {
		status = http.StatusUnprocessableEntity
	}
	s.log.Infof("compile: %d bytes, status %d", len(req.Source), status)
	c.write(w, status, resp)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	c := codecFor(r)
	var req RunRequest
	if err := c.decode(w, r, &req); err != nil {
		c.write(w, http.StatusBadRequest, &RunResponse{Output: []string{}, Error: errorInfo(err)})
		return
	}
	resp, err := s.runOnPool(r.Context(), &req)
	if err != nil {
		s.log.Warningf("run: %v", err)
		c.write(w, http.StatusServiceUnavailable, &RunResponse{Output: []string{}, Error: errorInfo(err)})
		return
	}
	status := http.StatusOK
	if resp.Error != nil && resp.Stats == nil {
		// nothing was executed
		status = http.StatusUnprocessableEntity
	}
	c.write(w, status, resp)
}

// codec selects the request and response encoding from Content-Type.
type codec struct {
	cbor bool
}

func codecFor(r *http.Request) codec {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return codec{cbor: err == nil && mt == contentTypeCBOR}
}

func (c codec) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if c.cbor {
		data, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("cannot read request: %w", err)
		}
		return vm.DecodeCBOR(data, v)
	}
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func (c codec) write(w http.ResponseWriter, status int, v any) {
	var (
		data []byte
		err  error
	)
	if c.cbor {
		w.Header().Set("Content-Type", contentTypeCBOR)
		data, err = vm.EncodeCBOR(v)
	} else {
		w.Header().Set("Content-Type", contentTypeJSON)
		data, err = json.Marshal(v)
		data = append(data, '\n')
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	w.Write(data)
}
