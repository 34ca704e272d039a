package engine

import (
	"testing"

	"github.com/radieske/prediction-market-poc/pkg/amount"
)

func wager(market, owner string, side bool, attos uint64) Wager {
	return Wager{WagerKey: WagerKey{MarketID: market, Owner: owner, Side: side}, Amount: amount.FromAttos(attos)}
}

func TestSettle_IgnoresForeignEntries(t *testing.T) {
	m := Market{ID: "mkt-1", YesPool: amount.FromAttos(100), NoPool: amount.FromAttos(100)}
	s := Settle(m, true, []Wager{
		wager("mkt-1", "a", true, 100),
		wager("mkt-1", "b", false, 100),
		wager("mkt-2", "c", true, 100),
	})
	if len(s.Transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(s.Transfers))
	}
	if s.Transfers[0].Recipient != "a" || !s.Transfers[0].Amount.Equal(amount.FromAttos(200)) {
		t.Errorf("unexpected transfer %+v", s.Transfers[0])
	}
	if !s.Dust.IsZero() {
		t.Errorf("expected no dust, got %s", s.Dust.Attos())
	}
}

func TestSettle_ZeroWinnerPool(t *testing.T) {
	m := Market{ID: "mkt-1", NoPool: amount.FromAttos(42)}
	s := Settle(m, true, nil)
	if len(s.Transfers) != 0 {
		t.Errorf("expected no transfers, got %d", len(s.Transfers))
	}
	if !s.Dust.Equal(amount.FromAttos(42)) {
		t.Errorf("expected dust 42, got %s", s.Dust.Attos())
	}
}

func TestSettle_NoLosersReturnsStakes(t *testing.T) {
	m := Market{ID: "mkt-1", YesPool: amount.FromAttos(3), NoPool: amount.Zero}
	s := Settle(m, true, []Wager{
		wager("mkt-1", "a", true, 1),
		wager("mkt-1", "b", true, 2),
	})
	if len(s.Transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(s.Transfers))
	}
	if !s.Disbursed.Equal(amount.FromAttos(3)) {
		t.Errorf("expected payout 3, got %s", s.Disbursed.Attos())
	}
}

func TestSettle_LargeValuesDoNotOverflow(t *testing.T) {
	half := amount.Max.MulDiv(amount.FromAttos(1), amount.FromAttos(2))
	m := Market{ID: "mkt-1", YesPool: half, NoPool: half}
	s := Settle(m, true, []Wager{wager("mkt-1", "a", true, 0), {
		WagerKey: WagerKey{MarketID: "mkt-1", Owner: "whale", Side: true},
		Amount:   half,
	}})
	if len(s.Transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(s.Transfers))
	}
	if !s.Transfers[0].Amount.Equal(m.TotalPool()) {
		t.Errorf("expected whale to take the whole pool %s, got %s", m.TotalPool().Attos(), s.Transfers[0].Amount.Attos())
	}
}

func TestCanManage(t *testing.T) {
	m := Market{Creator: "alice"}
	cases := []struct {
		caller, admin string
		want          bool
	}{
		{"alice", "", true},
		{"alice", "root", true},
		{"root", "root", true},
		{"bob", "root", false},
		{"", "", false},
		{"bob", "", false},
	}
	for _, c := range cases {
		if got := CanManage(m, c.caller, c.admin); got != c.want {
			t.Errorf("CanManage(caller=%q, admin=%q) = %v, want %v", c.caller, c.admin, got, c.want)
		}
	}
}

func TestStatusText(t *testing.T) {
	for _, s := range []Status{StatusOpen, StatusClosed, StatusResolved} {
		b, _ := s.MarshalText()
		var back Status
		if err := back.UnmarshalText(b); err != nil {
			t.Fatalf("unmarshal %s: %v", b, err)
		}
		if back != s {
			t.Errorf("expected %s, got %s", s, back)
		}
	}
	if _, err := ParseStatus("PENDING"); err == nil {
		t.Error("expected error for unknown status")
	}
}
