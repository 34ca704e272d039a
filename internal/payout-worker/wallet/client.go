package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// ErrPermanent marca respostas 4xx: repetir o crédito não muda o resultado
var ErrPermanent = errors.New("wallet credit rejected")

type creditRequest struct {
	Owner       string        `json:"owner"`
	Amount      amount.Amount `json:"amount"`
	ExternalRef string        `json:"external_ref"`
}

type creditResponse struct {
	Status string `json:"status"` // CREDITED | DUPLICATE
}

// Client credita prêmios no wallet-service
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 3 * time.Second},
	}
}

// Credit credita o valor; duplicate=true quando o external_ref já havia sido aplicado
func (c *Client) Credit(ctx context.Context, owner string, a amount.Amount, externalRef string) (bool, error) {
	body, err := json.Marshal(creditRequest{Owner: owner, Amount: a, ExternalRef: externalRef})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/wallet/credit", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return false, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode >= 500:
		return false, fmt.Errorf("wallet credit http %d", res.StatusCode)
	case res.StatusCode >= 300:
		return false, fmt.Errorf("%w: http %d", ErrPermanent, res.StatusCode)
	}
	var out creditResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return false, err
	}
	return out.Status == "DUPLICATE", nil
}
