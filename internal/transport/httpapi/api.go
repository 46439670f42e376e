// Package httpapi exposes the community ledger over REST. Responses use
// a uniform envelope; ownership conflicts map to 409 so clients can
// distinguish "lost the race" from "bad request".
package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"neighborhood.land/internal/catalogs"
	"neighborhood.land/internal/ledger"
	"neighborhood.land/internal/plots"
	"neighborhood.land/internal/protocol"
)

// userHeader carries the authenticated user identity. Verification
// happens at the edge proxy; the API trusts the header.
const userHeader = "X-User-ID"

type Server struct {
	store *ledger.Store
	cats  *catalogs.Catalogs
	log   *log.Logger

	defaultHistoryLimit int
	maxHistoryLimit     int
}

func NewServer(store *ledger.Store, cats *catalogs.Catalogs, logger *log.Logger) *Server {
	return &Server{
		store:               store,
		cats:                cats,
		log:                 logger,
		defaultHistoryLimit: 20,
		maxHistoryLimit:     200,
	}
}

// SetHistoryLimits overrides the transaction paging bounds.
func (s *Server) SetHistoryLimits(def, max int) {
	if def > 0 {
		s.defaultHistoryLimit = def
	}
	if max > 0 {
		s.maxHistoryLimit = max
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/plots", s.handleListPlots)
	mux.HandleFunc("GET /v1/plots/available", s.handleAvailable)
	mux.HandleFunc("GET /v1/plots/{id}", s.handleGetPlot)
	mux.HandleFunc("PATCH /v1/plots/{id}", s.handleDecorate)
	mux.HandleFunc("GET /v1/plots/{id}/adjacent", s.handleAdjacent)
	mux.HandleFunc("GET /v1/plots/{id}/transactions", s.handleTransactions)
	mux.HandleFunc("GET /v1/plots/{id}/like", s.handleLikeStatus)
	mux.HandleFunc("POST /v1/plots/{id}/like", s.handleLike)
	mux.HandleFunc("POST /v1/plots/purchase", s.handlePurchase)
	mux.HandleFunc("POST /v1/plots/{id}/sell", s.handleSell)
	mux.HandleFunc("POST /v1/accounts", s.handleRegister)
	mux.HandleFunc("GET /v1/plots/me", s.handleMe)
	mux.HandleFunc("GET /v1/me", s.handleMe)
	mux.HandleFunc("GET /v1/maps/active", s.handleActiveMap)
	mux.HandleFunc("GET /v1/catalogs", s.handleCatalogs)
	mux.HandleFunc("GET /v1/community/stats", s.handleStats)
	mux.HandleFunc("GET /v1/community/activities", s.handleActivities)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, protocol.APIResponse{Success: true, Data: data})
}

func codeFor(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput):
		return http.StatusBadRequest, protocol.ErrBadRequest
	case errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound, protocol.ErrAccountNotFound
	case errors.Is(err, ledger.ErrPlotNotFound):
		return http.StatusNotFound, protocol.ErrPlotNotFound
	case errors.Is(err, ledger.ErrMapNotFound):
		return http.StatusNotFound, protocol.ErrMapNotFound
	case errors.Is(err, ledger.ErrPlotAlreadyOwned):
		return http.StatusConflict, protocol.ErrPlotAlreadyOwned
	case errors.Is(err, ledger.ErrAccountHasPlot):
		return http.StatusConflict, protocol.ErrAccountHasPlot
	case errors.Is(err, ledger.ErrNotOwner):
		return http.StatusConflict, protocol.ErrNotOwner
	default:
		return http.StatusInternalServerError, protocol.ErrStorage
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status, code := codeFor(err)
	if status == http.StatusInternalServerError && s.log != nil {
		s.log.Printf("internal error: %v", err)
	}
	writeJSON(w, status, protocol.APIResponse{Success: false, Code: code, Error: err.Error()})
}

func newAccountID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "acc-" + hex.EncodeToString(b[:])
}

// account resolves the caller's account from the identity header.
func (s *Server) account(r *http.Request) (string, error) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		return "", ledger.ErrInvalidInput
	}
	a, err := s.store.AccountByUser(r.Context(), userID)
	if err != nil {
		return "", err
	}
	return a.ID, nil
}

func (s *Server) handleListPlots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mapID := r.URL.Query().Get("map_id")
	if mapID == "" {
		var err error
		mapID, err = s.store.ActiveMapID(ctx)
		if err != nil {
			s.fail(w, err)
			return
		}
	}
	list, err := s.store.ListPlots(ctx, mapID)
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, list)
}

func (s *Server) handleAvailable(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.AvailablePlots(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, list)
}

func (s *Server) handleGetPlot(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPlot(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, p)
}

// handleAdjacent degrades to an empty list on failure instead of a
// non-200 status. Map viewers render "no neighbors" rather than an
// error panel, and the error string is still in the envelope.
func (s *Server) handleAdjacent(w http.ResponseWriter, r *http.Request) {
	adj, err := s.store.FindAdjacent(r.Context(), r.PathValue("id"))
	if err != nil {
		_, code := codeFor(err)
		writeJSON(w, http.StatusOK, protocol.APIResponse{
			Success: false,
			Data:    []struct{}{},
			Code:    code,
			Error:   err.Error(),
		})
		return
	}
	if adj == nil {
		adj = []plots.Plot{}
	}
	ok(w, adj)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := s.defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, ledger.ErrInvalidInput)
			return
		}
		limit = n
	}
	if limit > s.maxHistoryLimit {
		limit = s.maxHistoryLimit
	}
	hist, err := s.store.History(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	if hist == nil {
		hist = []plots.TransactionRecord{}
	}
	ok(w, hist)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.account(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req protocol.PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, ledger.ErrInvalidInput)
		return
	}
	p, err := s.store.Purchase(r.Context(), accountID, req.PlotID, ledger.DecorationChoice{
		HouseType:  req.HouseType,
		HouseColor: req.HouseColor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, p)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.account(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.store.Sell(r.Context(), accountID, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, p)
}

func (s *Server) handleDecorate(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.account(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	var req protocol.DecorationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, ledger.ErrInvalidInput)
		return
	}
	p, err := s.store.UpdateDecorations(r.Context(), accountID, r.PathValue("id"), ledger.DecorationChoice{
		HouseType:  req.HouseType,
		HouseColor: req.HouseColor,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, p)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.account(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, liked, err := s.store.ToggleLike(r.Context(), accountID, r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, map[string]any{"plot": p, "liked": liked})
}

func (s *Server) handleLikeStatus(w http.ResponseWriter, r *http.Request) {
	accountID, err := s.account(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.store.GetPlot(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	liked, err := s.store.Liked(r.Context(), accountID, p.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, map[string]any{"liked": liked, "likes_count": p.LikesCount})
}

func (s *Server) handleActiveMap(w http.ResponseWriter, r *http.Request) {
	mapID, err := s.store.ActiveMapID(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	list, err := s.store.ListPlots(r.Context(), mapID)
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, map[string]any{"id": mapID, "plots": list})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		s.fail(w, ledger.ErrInvalidInput)
		return
	}
	var req protocol.RegisterRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	a, err := s.store.CreateAccount(r.Context(), newAccountID(), userID, req.DisplayName)
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, a)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		s.fail(w, ledger.ErrInvalidInput)
		return
	}
	a, err := s.store.AccountByUser(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	owned, err := s.store.PlotOf(r.Context(), a.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, map[string]any{"account": a, "plot": owned})
}

func (s *Server) handleCatalogs(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{
		"house_types": map[string]any{
			"digest": s.cats.HouseTypes.Digest,
			"items":  s.cats.HouseTypes.Defs,
		},
		"house_colors": map[string]any{
			"digest": s.cats.HouseColors.Digest,
			"items":  s.cats.HouseColors.Defs,
		},
		"plot_types": map[string]any{
			"digest": s.cats.PlotTypes.Digest,
			"items":  s.cats.PlotTypes.Defs,
		},
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, st)
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	limit := s.defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, ledger.ErrInvalidInput)
			return
		}
		limit = n
	}
	if limit > s.maxHistoryLimit {
		limit = s.maxHistoryLimit
	}
	acts, err := s.store.Activities(r.Context(), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	ok(w, acts)
}
