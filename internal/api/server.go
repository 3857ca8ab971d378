package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"bracketd/internal/bracket"
	"bracketd/internal/catalog"
	"bracketd/internal/domain"
	"bracketd/internal/journal"
	"bracketd/internal/metrics"
)

// Server serves the bracket order HTTP API.
type Server struct {
	workflow      *bracket.Workflow
	registry      *bracket.Registry
	catalog       *catalog.Catalog
	journal       *journal.Journal
	log           *slog.Logger
	defaultSymbol string
}

// NewServer wires a Server. jnl may be nil, which leaves the history endpoint
// empty.
func NewServer(
	workflow *bracket.Workflow,
	registry *bracket.Registry,
	cat *catalog.Catalog,
	jnl *journal.Journal,
	log *slog.Logger,
	defaultSymbol string,
) *Server {
	return &Server{
		workflow:      workflow,
		registry:      registry,
		catalog:       cat,
		journal:       jnl,
		log:           log,
		defaultSymbol: defaultSymbol,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /place-oco", s.handlePlaceLimit)
	mux.HandleFunc("POST /place-oco-stop", s.handlePlaceStop)
	mux.HandleFunc("GET /api/balance", s.handleBalance)
	mux.HandleFunc("GET /api/contracts", s.handleContracts)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind domain.ErrorKind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg, Kind: string(kind)})
}

// writeDomainError maps a placement error onto an HTTP status: caller faults
// are 400s, everything upstream is a 502. A partial bracket failure is also a
// 502, with the full cleanup report in the message.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := http.StatusBadGateway
	if kind.ClientFault() {
		status = http.StatusBadRequest
	}
	var perr *domain.ProtectiveOrderError
	if errors.As(err, &perr) && !perr.EntryCancelled {
		s.log.Error("bracket left in partial state", "entryOrderId", perr.EntryOrderID)
	}
	writeError(w, status, kind, err.Error())
}

func (s *Server) handlePlaceLimit(w http.ResponseWriter, r *http.Request) {
	s.handlePlace(w, r, domain.EntryLimit)
}

func (s *Server) handlePlaceStop(w http.ResponseWriter, r *http.Request) {
	s.handlePlace(w, r, domain.EntryStopMarket)
}

// placementTimeout bounds a detached placement: enough for the three venue
// calls, the pacing delay, and cleanup cancels.
const placementTimeout = 2 * time.Minute

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request, kind domain.EntryKind) {
	var req placeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, domain.KindMissingField, "invalid JSON body")
		return
	}

	// Once started, a placement runs to a terminal state. A client disconnect
	// must not cancel it mid-flight: that would abort between legs and then
	// run the cleanup cancels under an already-dead context, leaving a live
	// unprotected order.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), placementTimeout)
	defer cancel()

	res, err := s.workflow.PlaceBracket(ctx, req.toDomain(kind, s.defaultSymbol))
	if err != nil {
		s.log.Warn("bracket placement failed", "symbol", req.Symbol, "error", err)
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	acct, err := s.workflow.AccountSnapshot(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, balanceResponse{
		AccountID:   acct.AccountID,
		Balance:     acct.Balance,
		MaximumLoss: acct.MaximumLoss,
	})
}

func (s *Server) handleContracts(w http.ResponseWriter, r *http.Request) {
	specs := s.catalog.All()
	contracts := make([]contractJSON, 0, len(specs))
	for _, spec := range specs {
		contracts = append(contracts, convertContract(spec))
	}
	writeJSON(w, contractsResponse{Contracts: contracts})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, domain.KindMissingField, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	recs, err := s.journal.RecentPlacements(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "", "reading placement history")
		return
	}
	if recs == nil {
		recs = []journal.PlacementRecord{}
	}
	writeJSON(w, map[string]any{"placements": recs})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, healthResponse{
		Status:    "ok",
		Contracts: s.catalog.Len(),
		Watched:   s.registry.Len(),
	})
}
