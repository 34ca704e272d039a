package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/internal/wallet-service/dto"
	wrepo "github.com/radieske/prediction-market-poc/internal/wallet-service/repo"
	"github.com/radieske/prediction-market-poc/pkg/amount"
)

// memRepo é um Repo em memória com as mesmas regras de idempotência do Postgres
type memRepo struct {
	mu       sync.Mutex
	balances map[string]amount.Amount
	reserved map[string]amount.Amount // owner|ref -> valor
	status   map[string]string
	credits  map[string]bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		balances: map[string]amount.Amount{},
		reserved: map[string]amount.Amount{},
		status:   map[string]string{},
		credits:  map[string]bool{},
	}
}

func (m *memRepo) GetOrCreateWallet(_ context.Context, owner string) (string, amount.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return "w-" + owner, m.balances[owner], nil
}

func (m *memRepo) Deposit(_ context.Context, owner string, a amount.Amount, _ string) (string, amount.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[owner] = m.balances[owner].SaturatingAdd(a)
	return "w-" + owner, m.balances[owner], nil
}

func (m *memRepo) Reserve(_ context.Context, owner string, a amount.Amount, ref string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[owner]
	if !ok {
		return "", wrepo.ErrNotFound
	}
	key := owner + "|" + ref
	if _, ok := m.reserved[key]; ok {
		return "r-" + ref, nil
	}
	if bal.Cmp(a) < 0 {
		return "", wrepo.ErrInsufficientFunds
	}
	m.balances[owner] = bal.SaturatingSub(a)
	m.reserved[key] = a
	m.status[key] = "PENDING"
	return "r-" + ref, nil
}

func (m *memRepo) Commit(_ context.Context, owner, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := owner + "|" + ref
	if _, ok := m.status[key]; !ok {
		return wrepo.ErrNotFound
	}
	if m.status[key] == "PENDING" {
		m.status[key] = "COMMITTED"
	}
	return nil
}

func (m *memRepo) Refund(_ context.Context, owner, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := owner + "|" + ref
	if _, ok := m.status[key]; !ok {
		return wrepo.ErrNotFound
	}
	if m.status[key] == "PENDING" {
		m.status[key] = "REFUNDED"
		m.balances[owner] = m.balances[owner].SaturatingAdd(m.reserved[key])
	}
	return nil
}

func (m *memRepo) Credit(_ context.Context, owner string, a amount.Amount, ref string) (amount.Amount, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.credits[ref] {
		return m.balances[owner], false, nil
	}
	m.credits[ref] = true
	m.balances[owner] = m.balances[owner].SaturatingAdd(a)
	return m.balances[owner], true, nil
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReserve_InsufficientFunds(t *testing.T) {
	repo := newMemRepo()
	h := NewServer(zap.NewNop(), repo).Router()

	if rec := post(t, h, "/wallet/deposit", `{"owner":"alice","amount":"1.5"}`); rec.Code != http.StatusOK {
		t.Fatalf("deposit: %d %s", rec.Code, rec.Body)
	}
	rec := post(t, h, "/wallet/reserve", `{"owner":"alice","amount":"2","external_ref":"op-1"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	rec = post(t, h, "/wallet/reserve", `{"owner":"alice","amount":"1","external_ref":"op-2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body)
	}
	want, _ := amount.ParseAmount("0.5")
	if !repo.balances["alice"].Equal(want) {
		t.Errorf("expected balance 0.5, got %s", repo.balances["alice"])
	}
}

func TestReserve_UnknownWallet(t *testing.T) {
	h := NewServer(zap.NewNop(), newMemRepo()).Router()
	rec := post(t, h, "/wallet/reserve", `{"owner":"ghost","amount":"1","external_ref":"op-1"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRefund_RestoresBalance(t *testing.T) {
	repo := newMemRepo()
	h := NewServer(zap.NewNop(), repo).Router()
	post(t, h, "/wallet/deposit", `{"owner":"bob","amount":"10"}`)
	post(t, h, "/wallet/reserve", `{"owner":"bob","amount":"4","external_ref":"op-1"}`)

	for i := 0; i < 2; i++ {
		if rec := post(t, h, "/wallet/refund", `{"owner":"bob","external_ref":"op-1"}`); rec.Code != http.StatusOK {
			t.Fatalf("refund: %d", rec.Code)
		}
	}
	if !repo.balances["bob"].Equal(amount.FromTokens(10)) {
		t.Errorf("expected balance 10 after idempotent refund, got %s", repo.balances["bob"])
	}
}

func TestCredit_Idempotent(t *testing.T) {
	repo := newMemRepo()
	srv := NewServer(zap.NewNop(), repo)
	var dups int
	srv.OnCredit = func(dup bool) {
		if dup {
			dups++
		}
	}
	h := srv.Router()

	body := `{"owner":"carol","amount":"2.5","external_ref":"mkt-1:carol"}`
	rec := post(t, h, "/wallet/credit", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("credit: %d %s", rec.Code, rec.Body)
	}
	var first dto.CreditResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &first)
	if first.Status != "CREDITED" {
		t.Errorf("expected CREDITED, got %s", first.Status)
	}

	rec = post(t, h, "/wallet/credit", body)
	var second dto.CreditResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &second)
	if second.Status != "DUPLICATE" {
		t.Errorf("expected DUPLICATE, got %s", second.Status)
	}
	want, _ := amount.ParseAmount("2.5")
	if !repo.balances["carol"].Equal(want) {
		t.Errorf("expected single credit 2.5, got %s", repo.balances["carol"])
	}
	if dups != 1 {
		t.Errorf("expected 1 duplicate metric, got %d", dups)
	}
}

func TestInvalidPayloads(t *testing.T) {
	h := NewServer(zap.NewNop(), newMemRepo()).Router()
	cases := []struct{ path, body string }{
		{"/wallet/deposit", `{"owner":"a","amount":"0"}`},
		{"/wallet/deposit", `{"owner":"a","amount":"-1"}`},
		{"/wallet/reserve", `{"owner":"a","amount":"1"}`},
		{"/wallet/credit", `{"amount":"1","external_ref":"x"}`},
		{"/wallet/commit", `not json`},
	}
	for _, c := range cases {
		if rec := post(t, h, c.path, c.body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s %s: expected 400, got %d", c.path, c.body, rec.Code)
		}
	}
}

func TestGetWallet(t *testing.T) {
	h := NewServer(zap.NewNop(), newMemRepo()).Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wallet", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without owner, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/wallet?owner=dave", nil))
	var resp dto.WalletResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Owner != "dave" || !resp.Balance.IsZero() {
		t.Errorf("unexpected wallet %+v", resp)
	}
}
