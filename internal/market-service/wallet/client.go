package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	walletdto "github.com/radieske/prediction-market-poc/internal/market-service/wallet/dto"
	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// ErrRejected indica que o wallet-service recusou a reserva (saldo insuficiente ou carteira inexistente)
var ErrRejected = errors.New("wallet rejected reservation")

// Client faz o escrow das apostas no wallet-service
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

// Reserve bloqueia a aposta na carteira do dono
func (c *Client) Reserve(ctx context.Context, owner string, a amount.Amount, externalRef string) (string, error) {
	res, err := c.post(ctx, "/wallet/reserve", walletdto.ReserveRequest{Owner: owner, Amount: a, ExternalRef: externalRef})
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	switch {
	case res.StatusCode == http.StatusConflict || res.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: http %d", ErrRejected, res.StatusCode)
	case res.StatusCode >= 300:
		return "", fmt.Errorf("wallet reserve http %d", res.StatusCode)
	}
	var out walletdto.ReserveResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ReservationID, nil
}

// Commit efetiva a reserva após o engine aceitar a aposta
func (c *Client) Commit(ctx context.Context, owner, externalRef string) error {
	return c.settle(ctx, "/wallet/commit", owner, externalRef)
}

// Refund devolve a reserva quando o engine rejeita a aposta
func (c *Client) Refund(ctx context.Context, owner, externalRef string) error {
	return c.settle(ctx, "/wallet/refund", owner, externalRef)
}

func (c *Client) settle(ctx context.Context, path, owner, externalRef string) error {
	res, err := c.post(ctx, path, walletdto.SettleRequest{Owner: owner, ExternalRef: externalRef})
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return fmt.Errorf("wallet %s http %d", path, res.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, v any) (*http.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.HTTP.Do(req)
}
