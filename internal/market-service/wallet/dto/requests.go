package dto

import "github.com/radieske/prediction-market-poc/pkg/amount"

// ReserveRequest representa o payload para reservar saldo no wallet-service.
type ReserveRequest struct {
	Owner       string        `json:"owner"`
	Amount      amount.Amount `json:"amount"`
	ExternalRef string        `json:"external_ref"`
}

// SettleRequest é usado tanto no commit quanto no refund de uma reserva.
type SettleRequest struct {
	Owner       string `json:"owner"`
	ExternalRef string `json:"external_ref"`
}

// ReserveResponse representa a resposta do endpoint de reserva do wallet-service.
type ReserveResponse struct {
	ReservationID string `json:"reservation_id"`
	Status        string `json:"status"`
}
