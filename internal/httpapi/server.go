// Package httpapi exposes campaign submission, job results and the agent
// status surface over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"airdrop-optimizer/internal/domain"
	"airdrop-optimizer/internal/observability"
	"airdrop-optimizer/internal/pipeline"
	"airdrop-optimizer/internal/storage"
	"airdrop-optimizer/internal/trading"
	"airdrop-optimizer/internal/viability"
)

const maxBodyBytes = 1 << 20

// Options wires the API to the rest of the service. Summaries, Trades and
// Feed are optional.
type Options struct {
	Intake    *pipeline.Intake
	Jobs      storage.JobStore
	Campaigns storage.CampaignStore
	Registry  *trading.Registry
	Summaries storage.MetricsStore
	Trades    storage.TradeStore
	Feed      http.Handler // WebSocket status feed
	Logger    *log.Logger
}

// Server routes HTTP requests.
type Server struct {
	opts   Options
	logger *log.Logger
	mux    *http.ServeMux
}

// New creates the API server.
func New(opts Options) *Server {
	s := &Server{opts: opts, logger: opts.Logger, mux: http.NewServeMux()}
	if s.logger == nil {
		s.logger = log.Default()
	}

	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s.mux.Handle("GET /metrics", observability.Handler())

	s.mux.HandleFunc("POST /campaigns", s.handleSubmit)
	s.mux.HandleFunc("POST /campaigns/batch", s.handleSubmitBatch)
	s.mux.HandleFunc("GET /campaigns", s.handleListCampaigns)
	s.mux.HandleFunc("GET /campaigns/{id}", s.handleGetCampaign)
	s.mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("GET /agents", s.handleListAgents)
	s.mux.HandleFunc("GET /agents/{id}", s.handleGetAgent)
	s.mux.HandleFunc("GET /agents/{id}/trades", s.handleAgentTrades)
	s.mux.HandleFunc("POST /agents/{id}/start", s.handleAgentCommand((*trading.Registry).Start))
	s.mux.HandleFunc("POST /agents/{id}/stop", s.handleAgentCommand((*trading.Registry).Stop))
	if opts.Feed != nil {
		s.mux.Handle("GET /ws/agents", opts.Feed)
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var raw domain.RawCampaign
	if !s.decode(w, r, &raw) {
		return
	}

	sub, err := s.opts.Intake.Submit(r.Context(), raw)
	switch {
	case err == nil && sub.Duplicate:
		writeJSON(w, http.StatusOK, sub)
	case err == nil:
		writeJSON(w, http.StatusAccepted, sub)
	case errors.Is(err, pipeline.ErrCampaignRejected):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    err.Error(),
			"campaign": sub.Campaign,
		})
	case errors.Is(err, viability.ErrInvalidCampaign):
		writeError(w, http.StatusBadRequest, err)
	default:
		s.internal(w, r, err)
	}
}

type batchResponse struct {
	Submitted []pipeline.Submission `json:"submitted"`
	Rejected  int                   `json:"rejected"`
	Invalid   int                   `json:"invalid"`
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var raws []domain.RawCampaign
	if !s.decode(w, r, &raws) {
		return
	}

	res, err := s.opts.Intake.SubmitAll(r.Context(), raws)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if res.Submitted == nil {
		res.Submitted = []pipeline.Submission{}
	}
	writeJSON(w, http.StatusAccepted, batchResponse{Submitted: res.Submitted, Rejected: res.Rejected, Invalid: res.Invalid})
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	status := domain.CampaignStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.CampaignStatusActive
	}
	switch status {
	case domain.CampaignStatusActive, domain.CampaignStatusRejected, domain.CampaignStatusAgentCreated:
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown campaign status"))
		return
	}

	list, err := s.opts.Campaigns.GetByStatus(r.Context(), status)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Campaign{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.opts.Campaigns.GetByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	res, err := s.opts.Jobs.GetResult(r.Context(), r.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Registry.List())
}

// handleGetAgent serves the live snapshot, or the stored summary of an
// agent that is no longer registered.
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if a, err := s.opts.Registry.Get(id); err == nil {
		writeJSON(w, http.StatusOK, a.Snapshot())
		return
	}

	if s.opts.Summaries != nil {
		sum, err := s.opts.Summaries.GetByAgentID(r.Context(), id)
		if err == nil {
			writeJSON(w, http.StatusOK, sum)
			return
		}
		if !errors.Is(err, storage.ErrNotFound) {
			s.internal(w, r, err)
			return
		}
	}
	writeError(w, http.StatusNotFound, trading.ErrAgentNotFound)
}

func (s *Server) handleAgentTrades(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if a, err := s.opts.Registry.Get(id); err == nil {
		writeJSON(w, http.StatusOK, a.Trades())
		return
	}

	if s.opts.Trades == nil {
		writeError(w, http.StatusNotFound, trading.ErrAgentNotFound)
		return
	}
	trades, err := s.opts.Trades.GetByAgentID(r.Context(), id)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	if len(trades) == 0 {
		writeError(w, http.StatusNotFound, trading.ErrAgentNotFound)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleAgentCommand(cmd func(*trading.Registry, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		err := cmd(s.opts.Registry, id)
		switch {
		case err == nil:
			a, err := s.opts.Registry.Get(id)
			if err != nil {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			writeJSON(w, http.StatusOK, a.Snapshot())
		case errors.Is(err, trading.ErrAgentNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, trading.ErrInvalidStateTransition):
			writeError(w, http.StatusConflict, err)
		default:
			s.internal(w, r, err)
		}
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *Server) internal(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
