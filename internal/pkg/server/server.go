package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/anicoll/ostrom-integration/internal/pkg/config"
	"github.com/anicoll/ostrom-integration/internal/pkg/registry"
)

type refresher interface {
	RefreshAccount(ctx context.Context, id string) error
}

type server struct {
	reg       *registry.Registry
	refresher refresher
	logger    *zap.Logger
	now       func() time.Time
}

func New(reg *registry.Registry, r refresher) *server {
	return &server{
		reg:       reg,
		refresher: r,
		logger:    zap.L(),
		now:       time.Now,
	}
}

// Handler wires the routes. The manual-refresh endpoint is admin-only
// when a password hash is configured.
func (s *server) Handler(cfg *config.ServerConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.getHealth)
	mux.HandleFunc("GET /price/current", s.getCurrentPrice)
	mux.HandleFunc("GET /prices", s.getPrices)
	mux.Handle("POST /refresh", AdminAuth(cfg, http.HandlerFunc(s.postRefresh)))
	return LoggingMiddleware(mux)
}

func (s *server) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type currentPriceResponse struct {
	Account string `json:"account"`
	State   string `json:"state"`
	// Price is EUR/kWh for the current hour, null when unknown.
	Price *float64 `json:"price"`
}

func (s *server) getCurrentPrice(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(r)
	if !ok {
		handleError(w, http.StatusNotFound, errors.New("unknown account"))
		return
	}

	resp := currentPriceResponse{
		Account: account.Device.ID,
		State:   account.Coordinator.State().String(),
	}
	if price, found := account.Coordinator.CurrentPriceAt(s.now()); found {
		resp.Price = &price
	}
	writeJSON(w, resp)
}

func (s *server) getPrices(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(r)
	if !ok {
		handleError(w, http.StatusNotFound, errors.New("unknown account"))
		return
	}

	snapshot, found := account.Coordinator.Snapshot()
	if !found {
		handleError(w, http.StatusServiceUnavailable, errors.New("no price series published yet"))
		return
	}
	writeJSON(w, snapshot)
}

func (s *server) postRefresh(w http.ResponseWriter, r *http.Request) {
	account, ok := s.account(r)
	if !ok {
		handleError(w, http.StatusNotFound, errors.New("unknown account"))
		return
	}

	if err := s.refresher.RefreshAccount(r.Context(), account.Device.ID); err != nil {
		handleError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("success"))
}

// account resolves the ?account= parameter, falling back to the single
// configured account when the parameter is absent.
func (s *server) account(r *http.Request) (*registry.Account, bool) {
	if id := r.URL.Query().Get("account"); id != "" {
		return s.reg.Get(id)
	}
	ids := s.reg.IDs()
	if len(ids) != 1 {
		return nil, false
	}
	return s.reg.Get(ids[0])
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func handleError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	w.Write([]byte(err.Error()))
}
