package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/prediction-market-poc/internal/market-service/dto"
	"github.com/radieske/prediction-market-poc/internal/market-service/engine"
	"github.com/radieske/prediction-market-poc/internal/market-service/repo"
	"github.com/radieske/prediction-market-poc/internal/market-service/wallet"
	"github.com/radieske/prediction-market-poc/pkg/amount"
	"github.com/radieske/prediction-market-poc/pkg/contracts/events"
)

type fakeEscrow struct {
	mu       sync.Mutex
	reject   bool
	reserved map[string]string // ref -> status
}

func (f *fakeEscrow) Reserve(_ context.Context, _ string, _ amount.Amount, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return "", fmt.Errorf("%w: http 409", wallet.ErrRejected)
	}
	f.reserved[ref] = "PENDING"
	return "res-" + ref, nil
}

func (f *fakeEscrow) Commit(_ context.Context, _ string, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved[ref] = "COMMITTED"
	return nil
}

func (f *fakeEscrow) Refund(_ context.Context, _ string, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reserved[ref] = "REFUNDED"
	return nil
}

func (f *fakeEscrow) count(status string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.reserved {
		if s == status {
			n++
		}
	}
	return n
}

type fakeSync struct {
	mu      sync.Mutex
	snaps   map[string]events.MarketSnapshot
	reasons []string
}

func (f *fakeSync) Get(_ context.Context, id string) (events.MarketSnapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snaps[id]
	return s, ok, nil
}

func (f *fakeSync) Put(_ context.Context, s events.MarketSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[s.ID] = s
	return nil
}

func (f *fakeSync) Sync(_ context.Context, reason string, s events.MarketSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[s.ID] = s
	f.reasons = append(f.reasons, reason)
	return nil
}

type fakeArchive struct{ stored []engine.Settlement }

func (f *fakeArchive) Store(_ context.Context, s engine.Settlement) error {
	f.stored = append(f.stored, s)
	return nil
}

type testAPI struct {
	api     *API
	h       http.Handler
	store   *repo.Memory
	escrow  *fakeEscrow
	sync    *fakeSync
	archive *fakeArchive
	woken   int
	now     time.Time
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ta := &testAPI{
		store:   repo.NewMemory(),
		escrow:  &fakeEscrow{reserved: map[string]string{}},
		sync:    &fakeSync{snaps: map[string]events.MarketSnapshot{}},
		archive: &fakeArchive{},
		now:     time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	eng := engine.New(ta.store,
		engine.WithAdmin("admin"),
		engine.WithClock(func() time.Time { return ta.now }),
	)
	ta.api = &API{
		Log:        zap.NewNop(),
		Engine:     eng,
		Escrow:     ta.escrow,
		Sync:       ta.sync,
		Archive:    ta.archive,
		OnResolved: func() { ta.woken++ },
	}
	ta.h = ta.api.Router()
	return ta
}

func (ta *testAPI) do(t *testing.T, method, path, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		req.Header.Set(HeaderOwner, owner)
	}
	rec := httptest.NewRecorder()
	ta.h.ServeHTTP(rec, req)
	return rec
}

func (ta *testAPI) createMarket(t *testing.T) string {
	t.Helper()
	rec := ta.do(t, http.MethodPost, "/markets", "creator", `{"question":"Will BTC close above 100k?","duration_seconds":3600}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var resp dto.CreateMarketResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.MarketID
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body, err)
	}
	return e.Error
}

func TestCreateMarket(t *testing.T) {
	ta := newTestAPI(t)
	id := ta.createMarket(t)
	if id != "mkt-1" {
		t.Errorf("expected mkt-1, got %s", id)
	}
	if len(ta.sync.reasons) != 1 || ta.sync.reasons[0] != "created" {
		t.Errorf("expected created sync, got %v", ta.sync.reasons)
	}

	rec := ta.do(t, http.MethodPost, "/markets", "", `{"question":"q","duration_seconds":10}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without caller, got %d", rec.Code)
	}
	rec = ta.do(t, http.MethodPost, "/markets", "creator", `{"question":"q","duration_seconds":-1}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative duration, got %d", rec.Code)
	}
}

func TestCreateMarket_DurationBounds(t *testing.T) {
	ta := newTestAPI(t)

	body := fmt.Sprintf(`{"question":"q","duration_seconds":%d}`, engine.MaxDurationSeconds)
	rec := ta.do(t, http.MethodPost, "/markets", "creator", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 at max duration, got %d %s", rec.Code, rec.Body)
	}
	var resp dto.CreateMarketResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	want := ta.now.Add(time.Duration(engine.MaxDurationSeconds) * time.Second)
	if !resp.ExpiresAt.Equal(want) {
		t.Errorf("expected expiry %v, got %v", want, resp.ExpiresAt)
	}
	rec = ta.do(t, http.MethodPost, "/markets/"+resp.MarketID+"/bets", "alice", `{"side":true,"amount":"1"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected market open for betting, got %d %s", rec.Code, rec.Body)
	}

	for _, secs := range []uint64{engine.MaxDurationSeconds + 1, 10_000_000_000} {
		body := fmt.Sprintf(`{"question":"q","duration_seconds":%d}`, secs)
		rec := ta.do(t, http.MethodPost, "/markets", "creator", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("duration %d: expected 400, got %d", secs, rec.Code)
		}
	}
	var created int
	for _, r := range ta.sync.reasons {
		if r == "created" {
			created++
		}
	}
	if created != 1 {
		t.Errorf("expected only the valid market created, got %d", created)
	}
}

func TestPlaceBet_AccumulatesAndCommitsEscrow(t *testing.T) {
	ta := newTestAPI(t)
	id := ta.createMarket(t)

	for i := 0; i < 2; i++ {
		rec := ta.do(t, http.MethodPost, "/markets/"+id+"/bets", "alice", `{"side":true,"amount":"10"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("place: %d %s", rec.Code, rec.Body)
		}
		if i == 1 {
			var resp dto.PlaceBetResponse
			_ = json.Unmarshal(rec.Body.Bytes(), &resp)
			if !resp.CumulativeAmount.Equal(amount.FromTokens(20)) {
				t.Errorf("expected cumulative 20, got %s", resp.CumulativeAmount)
			}
			if !resp.YesPool.Equal(amount.FromTokens(20)) || !resp.NoPool.IsZero() {
				t.Errorf("unexpected pools %s / %s", resp.YesPool, resp.NoPool)
			}
		}
	}
	if n := ta.escrow.count("COMMITTED"); n != 2 {
		t.Errorf("expected 2 committed reservations, got %d", n)
	}
}

func TestPlaceBet_RejectedRefundsEscrow(t *testing.T) {
	ta := newTestAPI(t)
	id := ta.createMarket(t)
	ta.now = ta.now.Add(2 * time.Hour)

	rec := ta.do(t, http.MethodPost, "/markets/"+id+"/bets", "alice", `{"side":false,"amount":"1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for expired market, got %d", rec.Code)
	}
	if msg := decodeErr(t, rec); msg != engine.ErrMarketExpired.Error() {
		t.Errorf("unexpected error %q", msg)
	}
	if ta.escrow.count("REFUNDED") != 1 || ta.escrow.count("COMMITTED") != 0 {
		t.Errorf("expected reservation refunded, got %v", ta.escrow.reserved)
	}
}

func TestPlaceBet_Validation(t *testing.T) {
	ta := newTestAPI(t)
	id := ta.createMarket(t)

	cases := []struct {
		name, path, owner, body string
		want                    int
	}{
		{"zero amount", "/markets/" + id + "/bets", "alice", `{"side":true,"amount":"0"}`, http.StatusBadRequest},
		{"missing side", "/markets/" + id + "/bets", "alice", `{"amount":"1"}`, http.StatusBadRequest},
		{"negative amount", "/markets/" + id + "/bets", "alice", `{"side":true,"amount":"-1"}`, http.StatusBadRequest},
		{"no caller", "/markets/" + id + "/bets", "", `{"side":true,"amount":"1"}`, http.StatusUnauthorized},
		{"unknown market", "/markets/mkt-99/bets", "alice", `{"side":true,"amount":"1"}`, http.StatusNotFound},
	}
	for _, c := range cases {
		rec := ta.do(t, http.MethodPost, c.path, c.owner, c.body)
		if rec.Code != c.want {
			t.Errorf("%s: expected %d, got %d (%s)", c.name, c.want, rec.Code, rec.Body)
		}
	}
	if n := len(ta.store.LedgerEntries(id)); n != 0 {
		t.Errorf("expected empty ledger, got %d", n)
	}
}

func TestPlaceBet_WalletRejects(t *testing.T) {
	ta := newTestAPI(t)
	id := ta.createMarket(t)
	ta.escrow.reject = true

	rec := ta.do(t, http.MethodPost, "/markets/"+id+"/bets", "alice", `{"side":true,"amount":"5"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if n := len(ta.store.LedgerEntries(id)); n != 0 {
		t.Errorf("wager must not be recorded when escrow fails, got %d entries", n)
	}
}

func TestCloseAndResolve(t *testing.T) {
	ta := newTestAPI(t)
	id := ta.createMarket(t)

	ta.do(t, http.MethodPost, "/markets/"+id+"/bets", "alice", `{"side":true,"amount":"0.0000000000000001"}`)  // 100 attos
	ta.do(t, http.MethodPost, "/markets/"+id+"/bets", "bob", `{"side":true,"amount":"0.0000000000000002"}`)    // 200 attos
	ta.do(t, http.MethodPost, "/markets/"+id+"/bets", "carol", `{"side":false,"amount":"0.0000000000000001"}`) // 100 attos

	if rec := ta.do(t, http.MethodPost, "/markets/"+id+"/close", "mallory", ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-creator close, got %d", rec.Code)
	}
	if rec := ta.do(t, http.MethodPost, "/markets/"+id+"/resolve", "creator", `{"outcome":true}`); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 resolving open market, got %d", rec.Code)
	}

	rec := ta.do(t, http.MethodPost, "/markets/"+id+"/close", "creator", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("close: %d %s", rec.Code, rec.Body)
	}
	var closed dto.Market
	_ = json.Unmarshal(rec.Body.Bytes(), &closed)
	if closed.Status != "CLOSED" {
		t.Errorf("expected CLOSED, got %s", closed.Status)
	}

	if rec := ta.do(t, http.MethodPost, "/markets/"+id+"/resolve", "creator", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without outcome, got %d", rec.Code)
	}

	rec = ta.do(t, http.MethodPost, "/markets/"+id+"/resolve", "admin", `{"outcome":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve: %d %s", rec.Code, rec.Body)
	}
	var resp dto.ResolveResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	got := map[string]string{}
	for _, p := range resp.Payouts {
		got[p.Owner] = p.Amount.Attos()
	}
	if got["alice"] != "133" || got["bob"] != "266" || len(got) != 2 {
		t.Errorf("unexpected payouts %v", got)
	}
	if resp.Dust.Attos() != "1" {
		t.Errorf("expected dust 1 atto, got %s", resp.Dust.Attos())
	}
	if resp.Market.Status != "RESOLVED" || resp.Market.Resolution == nil || !*resp.Market.Resolution {
		t.Errorf("unexpected market %+v", resp.Market)
	}
	if ta.woken != 1 {
		t.Errorf("expected relay notified once, got %d", ta.woken)
	}
	if len(ta.archive.stored) != 1 {
		t.Errorf("expected settlement archived")
	}

	rec = ta.do(t, http.MethodPost, "/markets/"+id+"/resolve", "admin", `{"outcome":false}`)
	if rec.Code != http.StatusConflict || decodeErr(t, rec) != engine.ErrAlreadyResolved.Error() {
		t.Errorf("expected 409 already resolved, got %d %s", rec.Code, rec.Body)
	}
}

func TestGetMarket_CacheThenStore(t *testing.T) {
	ta := newTestAPI(t)
	id := ta.createMarket(t)

	// limpa o cache para forçar leitura do store
	ta.sync.snaps = map[string]events.MarketSnapshot{}
	rec := ta.do(t, http.MethodGet, "/markets/"+id, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	if _, ok := ta.sync.snaps[id]; !ok {
		t.Error("expected cache fill after miss")
	}

	// valor do cache tem prioridade
	cached := ta.sync.snaps[id]
	cached.Question = "from cache"
	ta.sync.snaps[id] = cached
	rec = ta.do(t, http.MethodGet, "/markets/"+id, "", "")
	var m dto.Market
	_ = json.Unmarshal(rec.Body.Bytes(), &m)
	if m.Question != "from cache" {
		t.Errorf("expected cached market, got %q", m.Question)
	}

	if rec := ta.do(t, http.MethodGet, "/markets/mkt-404", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	ta := newTestAPI(t)
	ta.api.APIKey = "k"
	h := ta.api.Router()

	req := httptest.NewRequest(http.MethodPost, "/markets", strings.NewReader(`{"question":"q"}`))
	req.Header.Set(HeaderOwner, "creator")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without api key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/markets", strings.NewReader(`{"question":"q"}`))
	req.Header.Set(HeaderOwner, "creator")
	req.Header.Set("X-API-Key", "k")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201 with api key, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		engine.ErrInvalidAmount:     http.StatusBadRequest,
		engine.ErrInvalidDuration:   http.StatusBadRequest,
		engine.ErrNotFound:          http.StatusNotFound,
		engine.ErrUnauthorized:      http.StatusForbidden,
		engine.ErrMarketNotOpen:     http.StatusConflict,
		engine.ErrMarketExpired:     http.StatusConflict,
		engine.ErrInvalidTransition: http.StatusConflict,
		engine.ErrAlreadyResolved:   http.StatusConflict,
		errors.New("db down"):       http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(fmt.Errorf("wrapped: %w", err)); got != want {
			t.Errorf("%v: expected %d, got %d", err, want, got)
		}
	}
}
