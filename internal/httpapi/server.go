package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"cryptofolio/internal/domain"
	"cryptofolio/internal/engine"
	"cryptofolio/internal/exchange"
	"cryptofolio/internal/ledger"
)

// Server wires the engine, ledger, and exchange into HTTP handlers.
type Server struct {
	engine     *engine.Engine
	ledger     *ledger.Ledger
	exchange   exchange.Exchange
	accessCode string
	log        *slog.Logger
}

// NewServer creates the API server. accessCode is the shared secret every
// request must carry in the "code" query parameter.
func NewServer(eng *engine.Engine, led *ledger.Ledger, ex exchange.Exchange, accessCode string, log *slog.Logger) *Server {
	return &Server{
		engine:     eng,
		ledger:     led,
		exchange:   ex,
		accessCode: accessCode,
		log:        log.With("component", "httpapi"),
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /tickers", s.handleTickers)
	mux.HandleFunc("GET /purchases", s.handlePurchases)
	mux.HandleFunc("GET /balances", s.handleBalances)
	mux.HandleFunc("POST /buy", s.handleBuy)
	mux.HandleFunc("POST /sell", s.handleSell)
}

// Handler returns the routed handler wrapped with auth and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.logMiddleware(s.authMiddleware(mux))
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if subtle.ConstantTimeCompare([]byte(code), []byte(s.accessCode)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid access code")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Info("request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) handleTickers(w http.ResponseWriter, r *http.Request) {
	tickers, err := s.exchange.Tickers(r.Context())
	if err != nil {
		s.log.Error("fetching tickers", "error", err)
		writeError(w, http.StatusBadGateway, "exchange unavailable")
		return
	}

	dist, err := s.ledger.LoadDistribution(r.Context())
	if err != nil {
		s.log.Error("loading distribution", "error", err)
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	writeJSON(w, TickersResponse{Tickers: tickers, Distribution: dist})
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	simulated := r.URL.Query().Has("mock")

	entries, err := s.ledger.ListPurchases(r.Context(), simulated)
	if err != nil {
		s.log.Error("listing purchases", "error", err)
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	out := make([]purchasesEntry, len(entries))
	for i, e := range entries {
		out[i] = purchasesEntry(e)
	}
	writeJSON(w, out)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.engine.PortfolioBalances(r.Context())
	if err != nil {
		s.log.Error("computing balances", "error", err)
		writeError(w, http.StatusBadGateway, "exchange unavailable")
		return
	}
	writeJSON(w, balances)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	var dist domain.Distribution
	if err := json.NewDecoder(r.Body).Decode(&dist); err != nil {
		writeError(w, http.StatusBadRequest, "invalid distribution payload")
		return
	}

	simulate := q.Has("mock")
	replace := q.Has("replace")

	err = s.engine.Allocate(r.Context(), dist, amount, replace, simulate)
	if err == nil {
		writeJSON(w, struct{}{})
		return
	}

	var unknown *engine.UnknownAssetError
	var tooSmall *engine.OrderTooSmallError
	var partial *engine.PartialExecutionError
	switch {
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrWeightsDoNotSum),
		errors.Is(err, engine.ErrInsufficientFunds),
		errors.As(err, &unknown),
		errors.As(err, &tooSmall):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &partial):
		s.log.Error("partial execution", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error("allocation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "allocation failed")
	}
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Deallocate(r.Context()); errors.Is(err, engine.ErrNotImplemented) {
		writeError(w, http.StatusNotImplemented, "sell is not implemented")
		return
	}
	writeJSON(w, struct{}{})
}
