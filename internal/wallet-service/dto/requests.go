package dto

import "github.com/radieske/prediction-market-poc/pkg/amount"

type DepositRequest struct {
	Owner       string        `json:"owner"`
	Amount      amount.Amount `json:"amount"`
	ExternalRef string        `json:"external_ref,omitempty"` // opcional p/ idempotência simples
}

type ReserveRequest struct {
	Owner       string        `json:"owner"`
	Amount      amount.Amount `json:"amount"`
	ExternalRef string        `json:"external_ref"` // ex: id da operação de aposta
}

type CommitRequest struct {
	Owner       string `json:"owner"`
	ExternalRef string `json:"external_ref"`
}

type RefundRequest struct {
	Owner       string `json:"owner"`
	ExternalRef string `json:"external_ref"`
}

// CreditRequest credita prêmios; external_ref é o transfer_id e garante crédito único
type CreditRequest struct {
	Owner       string        `json:"owner"`
	Amount      amount.Amount `json:"amount"`
	ExternalRef string        `json:"external_ref"`
}
