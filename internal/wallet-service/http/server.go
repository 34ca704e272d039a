package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/internal/wallet-service/dto"
	wrepo "github.com/radieske/prediction-market-poc/internal/wallet-service/repo"
	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// Repo define a interface de operações de carteira usadas pelo handler HTTP
type Repo interface {
	GetOrCreateWallet(ctx context.Context, owner string) (walletID string, balance amount.Amount, err error)
	Deposit(ctx context.Context, owner string, a amount.Amount, externalRef string) (walletID string, newBalance amount.Amount, err error)
	Reserve(ctx context.Context, owner string, a amount.Amount, externalRef string) (reservationID string, err error)
	Commit(ctx context.Context, owner, externalRef string) error
	Refund(ctx context.Context, owner, externalRef string) error
	Credit(ctx context.Context, owner string, a amount.Amount, externalRef string) (newBalance amount.Amount, credited bool, err error)
}

// Server expõe endpoints HTTP para operações de carteira (wallet)
type Server struct {
	log  *zap.Logger
	repo Repo

	OnCredit func(duplicate bool) // métricas
}

// NewServer instancia o servidor HTTP de wallet
func NewServer(log *zap.Logger, repo Repo) *Server { return &Server{log: log, repo: repo} }

// Router retorna o mux HTTP com as rotas da API de wallet
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /wallet", s.getWallet) // ?owner=...
	mux.HandleFunc("POST /wallet/deposit", s.deposit)
	mux.HandleFunc("POST /wallet/reserve", s.reserve)
	mux.HandleFunc("POST /wallet/commit", s.commit)
	mux.HandleFunc("POST /wallet/refund", s.refund)
	mux.HandleFunc("POST /wallet/credit", s.credit)
	return mux
}

// getWallet retorna (ou cria) a carteira e saldo do dono
func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner required", http.StatusBadRequest)
		return
	}
	walletID, bal, err := s.repo.GetOrCreateWallet(r.Context(), owner)
	if err != nil {
		s.fail(w, "get wallet", err)
		return
	}
	writeJSON(w, dto.WalletResponse{Owner: owner, WalletID: walletID, Balance: bal})
}

// deposit adiciona saldo à carteira do dono
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Owner == "" || req.Amount.IsZero() {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	walletID, bal, err := s.repo.Deposit(r.Context(), req.Owner, req.Amount, req.ExternalRef)
	if err != nil {
		s.fail(w, "deposit", err)
		return
	}
	writeJSON(w, dto.WalletResponse{Owner: req.Owner, WalletID: walletID, Balance: bal})
}

// reserve bloqueia saldo para uma aposta
func (s *Server) reserve(w http.ResponseWriter, r *http.Request) {
	var req dto.ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Owner == "" || req.Amount.IsZero() || req.ExternalRef == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	resID, err := s.repo.Reserve(r.Context(), req.Owner, req.Amount, req.ExternalRef)
	if err != nil {
		s.fail(w, "reserve", err)
		return
	}
	writeJSON(w, dto.ReservationResponse{ReservationID: resID, Status: "PENDING"})
}

// commit efetiva uma reserva de saldo
func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	var req dto.CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Owner == "" || req.ExternalRef == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := s.repo.Commit(r.Context(), req.Owner, req.ExternalRef); err != nil {
		s.fail(w, "commit", err)
		return
	}
	writeJSON(w, dto.ReservationResponse{Status: "COMMITTED"})
}

// refund desfaz uma reserva de saldo, devolvendo o valor ao dono
func (s *Server) refund(w http.ResponseWriter, r *http.Request) {
	var req dto.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Owner == "" || req.ExternalRef == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := s.repo.Refund(r.Context(), req.Owner, req.ExternalRef); err != nil {
		s.fail(w, "refund", err)
		return
	}
	writeJSON(w, dto.ReservationResponse{Status: "REFUNDED"})
}

// credit paga um prêmio; repetir o mesmo external_ref não credita de novo
func (s *Server) credit(w http.ResponseWriter, r *http.Request) {
	var req dto.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Owner == "" || req.Amount.IsZero() || req.ExternalRef == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	bal, credited, err := s.repo.Credit(r.Context(), req.Owner, req.Amount, req.ExternalRef)
	if err != nil {
		s.fail(w, "credit", err)
		return
	}
	if s.OnCredit != nil {
		s.OnCredit(!credited)
	}
	status := "CREDITED"
	if !credited {
		status = "DUPLICATE"
		s.log.Info("duplicate credit ignored", zap.String("owner", req.Owner), zap.String("external_ref", req.ExternalRef))
	}
	writeJSON(w, dto.CreditResponse{Status: status, Balance: bal})
}

// fail mapeia erros do repositório para status HTTP
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, wrepo.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, wrepo.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		s.log.Error("wallet "+op, zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
