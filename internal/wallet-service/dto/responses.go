package dto

import "github.com/radieske/prediction-market-poc/pkg/amount"

type WalletResponse struct {
	Owner    string        `json:"owner"`
	WalletID string        `json:"walletId"`
	Balance  amount.Amount `json:"balance"`
}

type ReservationResponse struct {
	ReservationID string `json:"reservation_id,omitempty"`
	Status        string `json:"status"`
}

type CreditResponse struct {
	Status  string        `json:"status"` // CREDITED | DUPLICATE
	Balance amount.Amount `json:"balance"`
}
