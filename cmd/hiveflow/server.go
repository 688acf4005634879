package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hiveflow/hiveflow/config"
	"github.com/hiveflow/hiveflow/eventlog"
	"github.com/hiveflow/hiveflow/hitl"
	"github.com/hiveflow/hiveflow/internal/metrics"
	"github.com/hiveflow/hiveflow/prefs"
	"github.com/hiveflow/hiveflow/registry"
	"github.com/hiveflow/hiveflow/routing"
	"github.com/hiveflow/hiveflow/store"
	"github.com/hiveflow/hiveflow/swarm"
	"github.com/hiveflow/hiveflow/types"
)

// Server wires the component graph and runs the HTTP surface.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	store        store.Store
	registry     *registry.Registry
	prefs        *prefs.Prefs
	events       *eventlog.Logger
	orchestrator *swarm.Orchestrator
	router       *routing.Controller
	gate         *hitl.Gate

	httpServer *http.Server
}

// NewServer builds the full component graph from config.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	st, err := store.NewStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	reg, err := registry.New(cfg.Registry.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent registry: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(promRegistry)

	preferences := prefs.New(st, logger)

	events, err := eventlog.New(cfg.Swarm.EventLogPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	sessions, err := swarm.NewSessionStore(cfg.Swarm.SessionDir, cfg.Swarm.SessionRetention, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	var invoker swarm.Invoker
	if cfg.Swarm.InvokerURL != "" {
		invoker = newWebhookInvoker(cfg.Swarm.InvokerURL, cfg.Swarm.InvokerTimeout)
	}

	var orchestrator *swarm.Orchestrator
	if invoker != nil {
		orchestrator = swarm.NewOrchestrator(reg, invoker, preferences, cfg.Swarm.OrchestratorConfig(), logger).
			WithEventLog(events).
			WithSessions(sessions).
			WithMetrics(collector)
	} else {
		logger.Warn("no invoker_url configured, execution endpoint disabled")
	}

	s := &Server{
		cfg:          cfg,
		logger:       logger.With(zap.String("component", "server")),
		store:        st,
		registry:     reg,
		prefs:        preferences,
		events:       events,
		orchestrator: orchestrator,
		router:       routing.NewController(st, cfg.Routing.ControllerConfig(), logger, collector),
		gate:         hitl.NewGate(st, cfg.HITL.GateConfig(), logger, collector),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/agents", s.handleAgents)
	mux.HandleFunc("POST /v1/executions", s.handleExecute)
	mux.HandleFunc("GET /v1/stats/handoffs", s.handleHandoffStats)
	mux.HandleFunc("GET /v1/routing/{domain}", s.handleRoutingStats)
	mux.HandleFunc("POST /v1/routing/outcomes", s.handleRoutingOutcome)
	mux.HandleFunc("POST /v1/actions/evaluate", s.handleEvaluateAction)
	mux.HandleFunc("POST /v1/actions/decisions", s.handleRecordDecision)
	if cfg.Server.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

// Start begins serving in the background.
func (s *Server) Start() error {
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains.
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	s.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown failed", zap.Error(err))
	}
	if err := s.events.Close(); err != nil {
		s.logger.Warn("event log close failed", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close failed", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		// Degraded, not down: orchestration still works on defaults.
		status = "degraded"
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"agents": len(s.registry.Names()),
	})
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	type agentInfo struct {
		Name            string   `json:"name"`
		Version         string   `json:"version"`
		Specialties     []string `json:"specialties,omitempty"`
		SupportsHandoff bool     `json:"supports_handoff"`
	}
	names := s.registry.Names()
	agents := make([]agentInfo, 0, len(names))
	for _, name := range names {
		desc, err := s.registry.Descriptor(name)
		if err != nil {
			continue
		}
		agents = append(agents, agentInfo{
			Name:            desc.Name,
			Version:         desc.Version,
			Specialties:     desc.Specialties,
			SupportsHandoff: desc.SupportsHandoff,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

type executeRequest struct {
	InitialAgent string         `json:"initial_agent"`
	Task         string         `json:"task"`
	Context      map[string]any `json:"context,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "no invoker configured")
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.InitialAgent == "" {
		writeError(w, http.StatusBadRequest, "initial_agent is required")
		return
	}

	result, err := s.orchestrator.Run(r.Context(), req.InitialAgent, req.Task, req.Context)
	if err != nil {
		var notFound *registry.AgentNotFoundError
		var target *swarm.TargetNotFoundError
		var capErr *swarm.MaxHandoffsError
		switch {
		case errors.As(err, &target), errors.As(err, &notFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &capErr):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  err.Error(),
				"result": result,
			})
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHandoffStats(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeJSON(w, http.StatusOK, swarm.HandoffStats{})
		return
	}
	writeJSON(w, http.StatusOK, s.orchestrator.GetHandoffStats())
}

func (s *Server) handleRoutingStats(w http.ResponseWriter, r *http.Request) {
	domain := strings.TrimSpace(r.PathValue("domain"))
	if domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	writeJSON(w, http.StatusOK, s.router.GetDomainStats(r.Context(), domain))
}

func (s *Server) handleRoutingOutcome(w http.ResponseWriter, r *http.Request) {
	var outcome types.TaskOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if outcome.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	if err := s.router.RecordOutcome(r.Context(), outcome); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, s.router.GetThreshold(r.Context(), outcome.Domain))
}

func (s *Server) handleEvaluateAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action hitl.Action    `json:"action"`
		Extra  map[string]any `json:"extra,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	pause, reason := s.gate.ShouldPause(r.Context(), req.Action, req.Extra)
	writeJSON(w, http.StatusOK, map[string]any{
		"pause":      pause,
		"reason":     reason,
		"category":   hitl.ClassifyAction(req.Action),
		"confidence": s.gate.CalculateConfidence(r.Context(), req.Action, req.Extra),
	})
}

func (s *Server) handleRecordDecision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action   hitl.Action `json:"action"`
		Approved bool        `json:"approved"`
		Feedback string      `json:"feedback,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.gate.RecordDecision(r.Context(), req.Action, req.Approved, req.Feedback); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// webhookInvoker forwards agent prompts to an external runner over HTTP.
type webhookInvoker struct {
	url    string
	client *http.Client
}

func newWebhookInvoker(url string, timeout time.Duration) *webhookInvoker {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &webhookInvoker{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *webhookInvoker) Invoke(ctx context.Context, agentName, prompt string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"agent":  agentName,
		"prompt": prompt,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent runner request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent runner returned status %d", resp.StatusCode)
	}
	var out struct {
		Output string `json:"output"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("invalid agent runner response: %w", err)
	}
	return out.Output, nil
}
