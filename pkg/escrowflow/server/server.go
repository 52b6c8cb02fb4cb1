package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randalmurphal/escrowflow/pkg/escrowflow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/checkpoint"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/datum"
	eferrors "github.com/randalmurphal/escrowflow/pkg/escrowflow/errors"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/escrow"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/ledger"
	"github.com/randalmurphal/escrowflow/pkg/escrowflow/registry"
)

// DefaultMaxBodyBytes bounds request bodies, BPMN uploads included.
const DefaultMaxBodyBytes int64 = 4 << 20

// ErrNoRunner indicates a route that reads escrow state on a server built
// without a Runner.
var ErrNoRunner = errors.New("escrow lookups need a runner")

// Server exposes workflows, datums and transition proposals over HTTP.
// It never signs or submits: proposals are returned for the caller to
// build and sign.
type Server struct {
	workflows *registry.Workflows
	engine    *escrow.Engine
	runner    *escrow.Runner
	logger    *slog.Logger
	maxBody   int64

	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// Option configures a Server.
type Option func(*Server)

// WithRunner enables the routes that read journaled escrows.
func WithRunner(r *escrow.Runner) Option {
	return func(s *Server) {
		s.runner = r
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRegistry sets the registry HTTP metrics are registered with and
// /metrics is served from. Share it with observability.NewPrometheusRecorder
// to expose engine metrics on the same endpoint.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		if reg != nil {
			s.registry = reg
		}
	}
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// New creates a Server over a workflow registry and an engine.
func New(workflows *registry.Workflows, engine *escrow.Engine, opts ...Option) (*Server, error) {
	if workflows == nil || engine == nil {
		return nil, errors.New("server needs workflows and an engine")
	}
	s := &Server{
		workflows: workflows,
		engine:    engine,
		logger:    slog.Default(),
		maxBody:   DefaultMaxBodyBytes,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrowflow_http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})
	s.latency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrowflow_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	if err := s.registry.Register(s.requests); err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}
	if err := s.registry.Register(s.latency); err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/workflows", func(r chi.Router) {
		r.Get("/", s.listWorkflows)
		r.Post("/", s.addWorkflow)
		r.Get("/{hash}", s.getWorkflow)
		r.Get("/{hash}/tasks/{task}/nodestate", s.nodeState)
	})
	r.Post("/datum/decode", s.decodeDatum)
	r.Post("/listings", s.proposeListing)
	r.Route("/escrows/{id}", func(r chi.Router) {
		r.Get("/", s.getEscrow)
		r.Post("/proposals", s.propose)
	})
	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		s.requests.WithLabelValues(route, r.Method, strconv.Itoa(code)).Inc()
		s.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if s.logger != nil {
			s.logger.Debug("request",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("code", code),
				slog.Duration("duration", time.Since(start)),
			)
		}
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.write(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"workflows": s.workflows.Len(),
	})
}

func (s *Server) listWorkflows(w http.ResponseWriter, _ *http.Request) {
	views := []WorkflowView{}
	for _, hash := range s.workflows.Hashes() {
		if tg, ok := s.workflows.Graph(hash); ok {
			views = append(views, NewWorkflowView(hash, tg))
		}
	}
	s.write(w, http.StatusOK, views)
}

func (s *Server) addWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err != nil {
		s.fail(w, r, http.StatusRequestEntityTooLarge, err)
		return
	}
	hash, tg, err := s.workflows.Add(body)
	if err != nil {
		s.fail(w, r, statusOf(err), err)
		return
	}
	s.write(w, http.StatusCreated, NewWorkflowView(hash, tg))
}

func (s *Server) graph(w http.ResponseWriter, r *http.Request) (datum.ProcessHash, *escrowflow.TaskGraph, bool) {
	hash, err := datum.ParseProcessHash(chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return hash, nil, false
	}
	tg, ok := s.workflows.Graph(hash)
	if !ok {
		s.fail(w, r, http.StatusNotFound, fmt.Errorf("workflow %s is not registered", hash))
		return hash, nil, false
	}
	return hash, tg, true
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	hash, tg, ok := s.graph(w, r)
	if !ok {
		return
	}
	s.write(w, http.StatusOK, NewWorkflowView(hash, tg))
}

func (s *Server) nodeState(w http.ResponseWriter, r *http.Request) {
	_, tg, ok := s.graph(w, r)
	if !ok {
		return
	}
	ns, err := escrow.PositionAt(tg, chi.URLParam(r, "task"))
	if err != nil {
		s.fail(w, r, statusOf(err), err)
		return
	}
	view, err := NewNodeStateView(ns)
	if err != nil {
		s.fail(w, r, statusOf(err), err)
		return
	}
	s.write(w, http.StatusOK, view)
}

type decodeRequest struct {
	CBOR string `json:"cbor"`
}

func (s *Server) decodeDatum(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := DecodeDatumHex(req.CBOR)
	if err != nil {
		s.fail(w, r, statusOf(err), err)
		return
	}
	s.write(w, http.StatusOK, view)
}

type listingRequest struct {
	Buyer         datum.PubKeyHash   `json:"buyer"`
	Seller        datum.PubKeyHash   `json:"seller"`
	ProcessHash   datum.ProcessHash  `json:"process_hash"`
	ProceedAmount int64              `json:"proceed_amount,omitempty"`
	Signers       []datum.PubKeyHash `json:"signers"`
}

func (s *Server) proposeListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if !s.decode(w, r, &req) {
		return
	}
	spec, err := s.engine.List(r.Context(), escrow.ListParams{
		Buyer:         req.Buyer,
		Seller:        req.Seller,
		ProcessHash:   req.ProcessHash,
		ProceedAmount: req.ProceedAmount,
	}, req.Signers)
	if err != nil {
		s.fail(w, r, statusOf(err), err)
		return
	}
	s.write(w, http.StatusOK, NewSpecView(spec))
}

func (s *Server) current(w http.ResponseWriter, r *http.Request) (*escrow.Escrow, *checkpoint.Checkpoint, bool) {
	if s.runner == nil {
		s.fail(w, r, http.StatusNotImplemented, ErrNoRunner)
		return nil, nil, false
	}
	esc, cp, err := s.runner.Current(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, statusOf(err), err)
		return nil, nil, false
	}
	return esc, cp, true
}

func (s *Server) getEscrow(w http.ResponseWriter, r *http.Request) {
	esc, cp, ok := s.current(w, r)
	if !ok {
		return
	}
	if esc == nil {
		s.write(w, http.StatusOK, ClosedEscrowView(cp))
		return
	}
	view, err := NewEscrowView(esc)
	if err != nil {
		s.fail(w, r, statusOf(err), err)
		return
	}
	s.write(w, http.StatusOK, view)
}

type proposalRequest struct {
	Transition  string             `json:"transition"`
	Signers     []datum.PubKeyHash `json:"signers"`
	Task        string             `json:"task,omitempty"`
	Price       int64              `json:"price,omitempty"`
	ArtifactRef string             `json:"artifact_ref,omitempty"`
}

func (s *Server) propose(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if !s.decode(w, r, &req) {
		return
	}
	esc, cp, ok := s.current(w, r)
	if !ok {
		return
	}
	if esc == nil {
		s.fail(w, r, http.StatusConflict, fmt.Errorf("escrow %s is %s", cp.EscrowID, cp.Status))
		return
	}

	ctx := r.Context()
	artifact := datum.ArtifactRefFromCID(req.ArtifactRef)
	var (
		spec *ledger.TxSpec
		err  error
	)
	switch escrow.Transition(req.Transition) {
	case escrow.TransitionStart:
		spec, err = s.engine.Start(ctx, esc, escrow.StartParams{Price: req.Price, ArtifactRef: artifact}, req.Signers)
	case escrow.TransitionRunTask:
		spec, err = s.engine.RunTask(ctx, esc, escrow.RunTaskParams{Task: req.Task, ArtifactRef: artifact}, req.Signers)
	case escrow.TransitionCompensate:
		spec, err = s.engine.Compensate(ctx, esc, req.Signers)
	case escrow.TransitionComplete:
		spec, err = s.engine.Complete(ctx, esc, req.Signers)
	case escrow.TransitionCancel:
		spec, err = s.engine.Cancel(ctx, esc, req.Signers)
	default:
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("unknown transition %q", req.Transition))
		return
	}
	if err != nil {
		s.fail(w, r, statusOf(err), err)
		return
	}
	s.write(w, http.StatusOK, NewSpecView(spec))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.fail(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func (s *Server) write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil && s.logger != nil {
		s.logger.Error("response encode failed", slog.String("error", err.Error()))
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, code int, err error) {
	if s.logger != nil {
		level := slog.LevelWarn
		if code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Int("code", code),
			slog.String("error", err.Error()),
		)
	}
	s.write(w, code, map[string]string{"error": err.Error()})
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var (
		precondition *eferrors.PreconditionError
		signature    *eferrors.SignatureRequirementError
		nodeState    *datum.InvalidNodeStateError
	)
	switch {
	case errors.As(err, &signature):
		return http.StatusForbidden
	case errors.As(err, &precondition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, checkpoint.ErrNotFound), errors.Is(err, escrow.ErrUnknownTask):
		return http.StatusNotFound
	case errors.As(err, &nodeState),
		errors.Is(err, escrowflow.ErrMalformedDocument),
		errors.Is(err, escrowflow.ErrNoTasksFound),
		errors.Is(err, datum.ErrMalformedData),
		errors.Is(err, datum.ErrUnknownConstructor),
		errors.Is(err, datum.ErrFieldCount),
		errors.Is(err, datum.ErrInvalidDatum):
		return http.StatusBadRequest
	case errors.Is(err, escrow.ErrNoJournal):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
