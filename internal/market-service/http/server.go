package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/internal/market-service/dto"
	"github.com/radieske/prediction-market-poc/internal/market-service/engine"
	"github.com/radieske/prediction-market-poc/internal/market-service/wallet"
	"github.com/radieske/prediction-market-poc/internal/shared/middleware"
	"github.com/radieske/prediction-market-poc/pkg/amount"
	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

// HeaderOwner identifica o chamador. O valor é confiado como veio do upstream:
// nem este serviço nem o api-gateway autenticam a identidade, só repassam o header.
// Em produção deve ficar atrás de um proxy que valide o token e preencha o header.
const HeaderOwner = "X-Account-Owner"

// Escrow reserva a aposta na carteira antes de registrá-la no engine
type Escrow interface {
	Reserve(ctx context.Context, owner string, a amount.Amount, externalRef string) (string, error)
	Commit(ctx context.Context, owner, externalRef string) error
	Refund(ctx context.Context, owner, externalRef string) error
}

// Syncer replica snapshots dos mercados (cache + pub/sub)
type Syncer interface {
	Get(ctx context.Context, marketID string) (events.MarketSnapshot, bool, error)
	Put(ctx context.Context, snap events.MarketSnapshot) error
	Sync(ctx context.Context, reason string, snap events.MarketSnapshot) error
}

// Archiver guarda o registro do settlement fora do banco
type Archiver interface {
	Store(ctx context.Context, s engine.Settlement) error
}

// API expõe as operações de mercado via REST
type API struct {
	Log     *zap.Logger
	Engine  *engine.Engine
	Escrow  Escrow       // opcional
	Sync    Syncer       // opcional
	Archive Archiver     // opcional
	WS      http.Handler // opcional, GET /ws
	APIKey  string

	OnResolved func()                      // acorda o relay do outbox
	OnOp       func(op string, err error) // métricas
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(a.Log))

	if a.WS != nil {
		r.Get("/ws", a.WS.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKey(a.APIKey))
		r.Post("/markets", a.createMarket)
		r.Get("/markets/{id}", a.getMarket)
		r.Post("/markets/{id}/bets", a.placeBet)
		r.Post("/markets/{id}/close", a.closeMarket)
		r.Post("/markets/{id}/resolve", a.resolveMarket)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg})
}

// statusFor mapeia erros de domínio para status HTTP; o resto vira 500
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidAmount), errors.Is(err, engine.ErrInvalidDuration):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrMarketNotOpen),
		errors.Is(err, engine.ErrMarketExpired),
		errors.Is(err, engine.ErrInvalidTransition),
		errors.Is(err, engine.ErrAlreadyResolved):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (a *API) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.Log.Error(op+" failed", zap.Error(err))
		writeErr(w, status, "internal error")
		return
	}
	writeErr(w, status, err.Error())
}

func (a *API) observe(op string, err error) {
	if a.OnOp != nil {
		a.OnOp(op, err)
	}
}

// caller lê o dono autenticado; responde 401 se ausente
func caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.Header.Get(HeaderOwner)
	if owner == "" {
		writeErr(w, http.StatusUnauthorized, "missing "+HeaderOwner)
		return "", false
	}
	return owner, true
}

// sync replica o snapshot; falha não desfaz a operação já confirmada
func (a *API) sync(ctx context.Context, reason string, m engine.Market) {
	if a.Sync == nil {
		return
	}
	if err := a.Sync.Sync(ctx, reason, m.Snapshot()); err != nil {
		a.Log.Warn("market sync failed", zap.String("market_id", m.ID), zap.String("reason", reason), zap.Error(err))
	}
}

// createMarket registra um novo mercado (CreateBet)
func (a *API) createMarket(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req dto.CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	duration, err := engine.DurationFromSeconds(req.DurationSeconds)
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Sprintf("duration_seconds must be <= %d", engine.MaxDurationSeconds))
		return
	}

	m, err := a.Engine.Create(r.Context(), owner, req.Question, duration)
	a.observe("create", err)
	if err != nil {
		a.fail(w, "create", err)
		return
	}
	a.sync(r.Context(), "created", m)
	writeJSON(w, http.StatusCreated, dto.CreateMarketResponse{MarketID: m.ID, ExpiresAt: m.ExpiresAt})
}

// getMarket retorna o mercado, preferencialmente do cache
func (a *API) getMarket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if a.Sync != nil {
		if snap, ok, err := a.Sync.Get(r.Context(), id); err == nil && ok {
			writeJSON(w, http.StatusOK, dto.FromSnapshot(snap))
			return
		} else if err != nil {
			a.Log.Warn("market cache get", zap.String("market_id", id), zap.Error(err))
		}
	}

	m, err := a.Engine.Market(r.Context(), id)
	if err != nil {
		a.fail(w, "get market", err)
		return
	}
	snap := m.Snapshot()
	if a.Sync != nil {
		_ = a.Sync.Put(r.Context(), snap)
	}
	writeJSON(w, http.StatusOK, dto.FromSnapshot(snap))
}

// placeBet reserva a aposta na carteira, registra no engine e efetiva (ou estorna) a reserva
func (a *API) placeBet(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Side == nil {
		writeErr(w, http.StatusBadRequest, "side required")
		return
	}
	if req.Amount.IsZero() {
		a.observe("place", engine.ErrInvalidAmount)
		a.fail(w, "place", engine.ErrInvalidAmount)
		return
	}

	// external_ref único por operação: apostas repetidas acumulam, cada uma com sua reserva
	ref := "wager:" + id + ":" + uuid.NewString()
	if a.Escrow != nil {
		if _, err := a.Escrow.Reserve(r.Context(), owner, req.Amount, ref); err != nil {
			a.observe("place", err)
			if errors.Is(err, wallet.ErrRejected) {
				writeErr(w, http.StatusConflict, "wallet reserve failed")
				return
			}
			a.Log.Error("wallet reserve", zap.String("owner", owner), zap.Error(err))
			writeErr(w, http.StatusBadGateway, "wallet unavailable")
			return
		}
	}

	m, wager, err := a.Engine.Place(r.Context(), id, owner, *req.Side, req.Amount)
	a.observe("place", err)
	if err != nil {
		if a.Escrow != nil {
			if rerr := a.Escrow.Refund(context.WithoutCancel(r.Context()), owner, ref); rerr != nil {
				a.Log.Error("wallet refund after rejected wager",
					zap.String("owner", owner), zap.String("external_ref", ref), zap.Error(rerr))
			}
		}
		a.fail(w, "place", err)
		return
	}
	if a.Escrow != nil {
		if cerr := a.Escrow.Commit(context.WithoutCancel(r.Context()), owner, ref); cerr != nil {
			a.Log.Error("wallet commit after accepted wager",
				zap.String("owner", owner), zap.String("external_ref", ref), zap.Error(cerr))
		}
	}

	a.sync(r.Context(), "wager", m)
	writeJSON(w, http.StatusOK, dto.PlaceBetResponse{
		MarketID:         m.ID,
		Side:             *req.Side,
		CumulativeAmount: wager.Amount,
		YesPool:          m.YesPool,
		NoPool:           m.NoPool,
	})
}

// closeMarket encerra as apostas (CloseBet)
func (a *API) closeMarket(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	m, err := a.Engine.Close(r.Context(), chi.URLParam(r, "id"), owner)
	a.observe("close", err)
	if err != nil {
		a.fail(w, "close", err)
		return
	}
	a.sync(r.Context(), "closed", m)
	writeJSON(w, http.StatusOK, dto.FromSnapshot(m.Snapshot()))
}

// resolveMarket fixa o resultado e enfileira os pagamentos (ResolveBet)
func (a *API) resolveMarket(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req dto.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if req.Outcome == nil {
		writeErr(w, http.StatusBadRequest, "outcome required")
		return
	}

	s, err := a.Engine.Resolve(r.Context(), chi.URLParam(r, "id"), owner, *req.Outcome)
	a.observe("resolve", err)
	if err != nil {
		a.fail(w, "resolve", err)
		return
	}
	if a.OnResolved != nil {
		a.OnResolved()
	}
	if a.Archive != nil {
		if err := a.Archive.Store(r.Context(), s); err != nil {
			a.Log.Warn("settlement archive failed", zap.String("market_id", s.Market.ID), zap.Error(err))
		}
	}
	a.sync(r.Context(), "resolved", s.Market)

	resp := dto.ResolveResponse{
		Market:    dto.FromSnapshot(s.Market.Snapshot()),
		Payouts:   make([]dto.Payout, 0, len(s.Transfers)),
		Disbursed: s.Disbursed,
		Dust:      s.Dust,
	}
	for _, t := range s.Transfers {
		resp.Payouts = append(resp.Payouts, dto.Payout{TransferID: t.ID, Owner: t.Recipient, Amount: t.Amount})
	}
	writeJSON(w, http.StatusOK, resp)
}
