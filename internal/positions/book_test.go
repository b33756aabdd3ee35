package positions

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"wheel-tracker/internal/costbasis"
	apperrors "wheel-tracker/internal/errors"
	"wheel-tracker/internal/models"
)

var day0 = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func premium(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(s))
}

func at(days int) time.Time {
	return day0.AddDate(0, 0, days)
}

func expiry(days int) time.Time {
	y, m, d := at(days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sellPut(id int64, ticker, strike, prem string, contracts, day int) models.TradeEvent {
	return models.TradeEvent{
		ID: id, Ticker: ticker, Kind: models.KindSellPut,
		Strike: dec(strike), Premium: premium(prem), Contracts: contracts,
		Expiration: expiry(day + 30), Timestamp: at(day),
	}
}

func sellCall(id int64, ticker, strike, prem string, contracts, day int) models.TradeEvent {
	ev := sellPut(id, ticker, strike, prem, contracts, day)
	ev.Kind = models.KindSellCall
	return ev
}

func assigned(id int64, kind models.EventKind, ticker string, shares int64, price string, link int64, day int) models.TradeEvent {
	return models.TradeEvent{
		ID: id, Ticker: ticker, Kind: kind, Contracts: int(shares / models.SharesPerContract),
		Shares: shares, CostBasisPerShare: dec(price), LinkedTradeID: link, Timestamp: at(day),
	}
}

func mustReplay(t *testing.T, events []models.TradeEvent, opts Options) *Book {
	t.Helper()
	b, err := Replay(events, opts)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	return b
}

func TestFullWheelCycle(t *testing.T) {
	events := []models.TradeEvent{
		sellPut(1, "AAPL", "150", "1.50", 1, 0),
		assigned(2, models.KindPutAssigned, "AAPL", 100, "150", 1, 30),
		sellCall(3, "AAPL", "155", "2.00", 1, 31),
		assigned(4, models.KindCallAssigned, "AAPL", 100, "155", 3, 60),
	}
	b := mustReplay(t, events, DefaultOptions())

	pos, ok := b.Position("AAPL")
	if !ok {
		t.Fatal("expected AAPL position")
	}
	if pos.Shares() != 0 {
		t.Errorf("Shares() = %d, want 0", pos.Shares())
	}
	if _, defined := pos.RunningBasis(costbasis.ModeStrike); defined {
		t.Error("running basis should be undefined once all shares are called away")
	}
	if !pos.RealizedPremium().Equal(dec("350")) {
		t.Errorf("RealizedPremium() = %s, want 350", pos.RealizedPremium())
	}
	if !pos.AssignmentPnL.Equal(dec("500")) {
		t.Errorf("AssignmentPnL = %s, want 500", pos.AssignmentPnL)
	}
	if !pos.RealizedPnL().Equal(dec("850")) {
		t.Errorf("RealizedPnL() = %s, want 850", pos.RealizedPnL())
	}
	for _, leg := range pos.Legs {
		if leg.Status != models.LegAssigned {
			t.Errorf("leg %d status = %s, want %s", leg.ID, leg.Status, models.LegAssigned)
		}
	}
	if !pos.Empty() {
		t.Error("position should be empty after the cycle completes")
	}
}

func TestPutAssignmentBasisModes(t *testing.T) {
	events := []models.TradeEvent{
		sellPut(1, "AAPL", "150", "1.50", 1, 0),
		assigned(2, models.KindPutAssigned, "AAPL", 100, "150", 1, 30),
		sellPut(3, "AAPL", "160", "2.00", 1, 31),
		assigned(4, models.KindPutAssigned, "AAPL", 100, "160", 3, 60),
	}
	b := mustReplay(t, events, DefaultOptions())
	pos, _ := b.Position("AAPL")

	if pos.Shares() != 200 {
		t.Fatalf("Shares() = %d, want 200", pos.Shares())
	}
	strike, ok := pos.RunningBasis(costbasis.ModeStrike)
	if !ok || !strike.Equal(dec("155")) {
		t.Errorf("strike basis = %s (%v), want 155", strike, ok)
	}
	adjusted, ok := pos.RunningBasis(costbasis.ModePremiumAdjusted)
	if !ok || !adjusted.Equal(dec("153.25")) {
		t.Errorf("adjusted basis = %s (%v), want 153.25", adjusted, ok)
	}
}

func TestCallAssignmentWithoutSharesRejected(t *testing.T) {
	b := NewBook(DefaultOptions())
	if err := b.Apply(sellCall(1, "MSFT", "400", "3.00", 1, 0)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	err := b.Apply(assigned(2, models.KindCallAssigned, "MSFT", 100, "400", 1, 10))
	if !errors.Is(err, apperrors.ErrInvalidEvent) {
		t.Fatalf("Apply() error = %v, want invalid event", err)
	}
	if b.Applied() != 1 {
		t.Errorf("Applied() = %d, want 1", b.Applied())
	}
	leg, _ := b.Leg(1)
	if leg.Status != models.LegOpen {
		t.Errorf("leg status = %s, rejected assignment must not change it", leg.Status)
	}
}

func TestAmbiguousAssignment(t *testing.T) {
	b := mustReplay(t, []models.TradeEvent{
		sellPut(1, "AMD", "100", "1.00", 1, 0),
		sellPut(2, "AMD", "95", "0.80", 1, 1),
	}, DefaultOptions())

	err := b.Apply(assigned(3, models.KindPutAssigned, "AMD", 100, "100", 0, 20))
	var amb *apperrors.AmbiguousReferenceError
	if !errors.As(err, &amb) {
		t.Fatalf("Apply() error = %v, want ambiguous reference", err)
	}
	if len(amb.Candidates) != 2 {
		t.Errorf("candidates = %v, want two", amb.Candidates)
	}

	if err := b.Apply(assigned(3, models.KindPutAssigned, "AMD", 100, "100", 1, 20)); err != nil {
		t.Fatalf("linked assignment error = %v", err)
	}
	leg, _ := b.Leg(1)
	if leg.Status != models.LegAssigned {
		t.Errorf("leg 1 status = %s, want ASSIGNED", leg.Status)
	}
}

func TestUnlinkedAssignmentAdjustsShares(t *testing.T) {
	b := mustReplay(t, []models.TradeEvent{
		assigned(1, models.KindPutAssigned, "TSLA", 100, "200", 0, 0),
	}, DefaultOptions())

	pos, _ := b.Position("TSLA")
	if pos.Shares() != 100 {
		t.Errorf("Shares() = %d, want 100", pos.Shares())
	}
	if len(pos.Unlinked) != 1 || pos.Unlinked[0] != 1 {
		t.Errorf("Unlinked = %v, want [1]", pos.Unlinked)
	}
	if !pos.RealizedPremium().IsZero() {
		t.Errorf("RealizedPremium() = %s, want 0", pos.RealizedPremium())
	}
}

func TestPartialClose(t *testing.T) {
	closeEv := models.TradeEvent{
		ID: 2, Ticker: "AAPL", Kind: models.KindClose, Contracts: 1,
		ClosePrice: dec("0.40"), LinkedTradeID: 1, Timestamp: at(5),
	}
	b := mustReplay(t, []models.TradeEvent{sellPut(1, "AAPL", "150", "1.50", 3, 0), closeEv}, DefaultOptions())

	leg, _ := b.Leg(1)
	if leg.Status != models.LegOpen || leg.Contracts != 2 {
		t.Errorf("leg = %s with %d contracts, want OPEN with 2", leg.Status, leg.Contracts)
	}
	if want := dec("410"); !b.RealizedPremium().Equal(want) {
		t.Errorf("RealizedPremium() = %s, want %s", b.RealizedPremium(), want)
	}

	closeEv.ID, closeEv.Contracts = 3, 3
	if err := b.Apply(closeEv); !errors.Is(err, apperrors.ErrInvalidEvent) {
		t.Errorf("closing more than open error = %v, want invalid event", err)
	}

	closeEv.Contracts = 2
	if err := b.Apply(closeEv); err != nil {
		t.Fatalf("closing remainder error = %v", err)
	}
	leg, _ = b.Leg(1)
	if leg.Status != models.LegClosed {
		t.Errorf("leg status = %s, want CLOSED", leg.Status)
	}

	closeEv.ID, closeEv.Contracts = 4, 1
	if err := b.Apply(closeEv); !errors.Is(err, apperrors.ErrInvalidEvent) {
		t.Errorf("closing a closed leg error = %v, want invalid event", err)
	}
}

func TestRollPremiumModes(t *testing.T) {
	roll := models.TradeEvent{
		ID: 2, Ticker: "SPY", Kind: models.KindRoll, Contracts: 1,
		Premium: premium("1.20"), ClosePrice: dec("0.50"), Expiration: expiry(60),
		LinkedTradeID: 1, Timestamp: at(10),
	}
	events := []models.TradeEvent{sellPut(1, "SPY", "450", "2.00", 1, 0), roll}

	tests := []struct {
		mode       RollPremiumMode
		total      string
		legPremium string
	}{
		{RollNet, "320", "3.2"},
		{RollNewLeg, "270", "2.7"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			b := mustReplay(t, events, Options{BasisMode: costbasis.ModeStrike, RollPremium: tt.mode})

			if !b.RealizedPremium().Equal(dec(tt.total)) {
				t.Errorf("RealizedPremium() = %s, want %s", b.RealizedPremium(), tt.total)
			}
			old, _ := b.Leg(1)
			if old.Status != models.LegRolled {
				t.Errorf("old leg status = %s, want ROLLED", old.Status)
			}
			next, ok := b.Leg(2)
			if !ok {
				t.Fatal("roll should open a new leg")
			}
			if next.RolledFrom != 1 || !next.Strike.Equal(dec("450")) {
				t.Errorf("new leg = %+v, want rolled from 1 at strike 450", next)
			}
			if !next.Premium.Equal(dec(tt.legPremium)) {
				t.Errorf("new leg premium = %s, want %s", next.Premium, tt.legPremium)
			}
		})
	}
}

func TestRollNewLegRejectsNegativePremium(t *testing.T) {
	roll := models.TradeEvent{
		ID: 2, Ticker: "SPY", Kind: models.KindRoll, Contracts: 1,
		Premium: premium("-0.10"), Expiration: expiry(60), LinkedTradeID: 1, Timestamp: at(10),
	}
	_, err := Replay([]models.TradeEvent{sellPut(1, "SPY", "450", "2.00", 1, 0), roll},
		Options{BasisMode: costbasis.ModeStrike, RollPremium: RollNewLeg})
	if !errors.Is(err, apperrors.ErrInvalidEvent) {
		t.Errorf("Replay() error = %v, want invalid event", err)
	}

	if _, err := Replay([]models.TradeEvent{sellPut(1, "SPY", "450", "2.00", 1, 0), roll}, DefaultOptions()); err != nil {
		t.Errorf("net roll debit should be accepted, got %v", err)
	}
}

func TestLegExpiresWorthless(t *testing.T) {
	b := mustReplay(t, []models.TradeEvent{sellPut(1, "AAPL", "150", "1.50", 1, 0)}, DefaultOptions())
	leg, _ := b.Leg(1)

	if got := leg.StatusAt(expiry(30).Add(20 * time.Hour)); got != models.LegOpen {
		t.Errorf("StatusAt(expiration day) = %s, want OPEN", got)
	}
	// 02:00 UTC the next day is still the expiration evening in New York.
	if got := leg.StatusAt(expiry(31).Add(2 * time.Hour)); got != models.LegOpen {
		t.Errorf("StatusAt(expiration evening) = %s, want OPEN", got)
	}
	if got := leg.StatusAt(expiry(31).Add(12 * time.Hour)); got != models.LegExpiredWorthless {
		t.Errorf("StatusAt(day after expiration) = %s, want EXPIRED_WORTHLESS", got)
	}
}

func TestExpiredLegIsNotAnAssignmentCandidate(t *testing.T) {
	events := []models.TradeEvent{
		sellPut(1, "AAPL", "150", "1.50", 1, 0),
		sellPut(2, "AAPL", "145", "1.20", 1, 35),
		assigned(3, models.KindPutAssigned, "AAPL", 100, "145", 0, 65),
	}
	b := mustReplay(t, events, DefaultOptions())

	first, _ := b.Leg(1)
	if got := first.StatusAt(at(65)); got != models.LegExpiredWorthless {
		t.Errorf("leg 1 StatusAt() = %s, want EXPIRED_WORTHLESS", got)
	}
	second, _ := b.Leg(2)
	if second.Status != models.LegAssigned || second.ResolvedBy != 3 {
		t.Errorf("leg 2 = %s resolved by %d, want ASSIGNED by 3", second.Status, second.ResolvedBy)
	}
	pos, _ := b.Position("AAPL")
	if len(pos.Unlinked) != 0 {
		t.Errorf("Unlinked = %v, want none", pos.Unlinked)
	}
}

func TestExpiredLegRejectsCloseAndRoll(t *testing.T) {
	b := mustReplay(t, []models.TradeEvent{sellPut(1, "AAPL", "150", "1.50", 1, 0)}, DefaultOptions())

	closeEv := models.TradeEvent{
		ID: 2, Ticker: "AAPL", Kind: models.KindClose, Contracts: 1,
		ClosePrice: dec("0.05"), LinkedTradeID: 1, Timestamp: at(31),
	}
	if err := b.Apply(closeEv); !errors.Is(err, apperrors.ErrInvalidEvent) {
		t.Errorf("closing an expired leg error = %v, want invalid event", err)
	}
	roll := models.TradeEvent{
		ID: 3, Ticker: "AAPL", Kind: models.KindRoll, Contracts: 1,
		Premium: premium("0.80"), Expiration: expiry(60), LinkedTradeID: 1, Timestamp: at(31),
	}
	if err := b.Apply(roll); !errors.Is(err, apperrors.ErrInvalidEvent) {
		t.Errorf("rolling an expired leg error = %v, want invalid event", err)
	}

	// Closing on the expiration date itself is still allowed.
	closeEv.Timestamp = at(30)
	if err := b.Apply(closeEv); err != nil {
		t.Errorf("closing on expiration day error = %v", err)
	}
}

func TestLinkedAssignmentOfExpiredLegIsUnlinked(t *testing.T) {
	events := []models.TradeEvent{
		sellPut(1, "AAPL", "150", "1.50", 1, 0),
		assigned(2, models.KindPutAssigned, "AAPL", 100, "150", 1, 40),
	}
	b := mustReplay(t, events, Options{BasisMode: costbasis.ModePremiumAdjusted, RollPremium: RollNet})

	pos, _ := b.Position("AAPL")
	if len(pos.Unlinked) != 1 || pos.Unlinked[0] != 2 {
		t.Errorf("Unlinked = %v, want [2]", pos.Unlinked)
	}
	if basis, _ := pos.RunningBasis(costbasis.ModePremiumAdjusted); !basis.Equal(dec("150")) {
		t.Errorf("premium-adjusted basis = %s, want 150", basis)
	}
}

func TestDeployedCapitalDropsExpiredPuts(t *testing.T) {
	b := mustReplay(t, []models.TradeEvent{
		sellPut(1, "AAPL", "150", "1.50", 1, 0),
		sellPut(2, "AAPL", "145", "1.20", 1, 35),
	}, DefaultOptions())

	if want := dec("29500"); !b.DeployedCapital(at(20)).Equal(want) {
		t.Errorf("DeployedCapital(day 20) = %s, want %s", b.DeployedCapital(at(20)), want)
	}
	if want := dec("14500"); !b.DeployedCapital(at(40)).Equal(want) {
		t.Errorf("DeployedCapital(day 40) = %s, want %s", b.DeployedCapital(at(40)), want)
	}
}

func TestRollChainBasisIndependentOfMode(t *testing.T) {
	sale := sellPut(1, "SPY", "450", "2.00", 1, 0)
	rolls := map[RollPremiumMode]models.TradeEvent{
		RollNet: {ID: 2, Ticker: "SPY", Kind: models.KindRoll, Contracts: 1,
			Premium: premium("0.70"), Expiration: expiry(60), LinkedTradeID: 1, Timestamp: at(10)},
		RollNewLeg: {ID: 2, Ticker: "SPY", Kind: models.KindRoll, Contracts: 1,
			Premium: premium("1.20"), ClosePrice: dec("0.50"), Expiration: expiry(60), LinkedTradeID: 1, Timestamp: at(10)},
	}
	for mode, roll := range rolls {
		t.Run(string(mode), func(t *testing.T) {
			events := []models.TradeEvent{sale, roll, assigned(3, models.KindPutAssigned, "SPY", 100, "450", 2, 55)}
			b := mustReplay(t, events, Options{BasisMode: costbasis.ModePremiumAdjusted, RollPremium: mode})

			pos, _ := b.Position("SPY")
			basis, ok := pos.RunningBasis(costbasis.ModePremiumAdjusted)
			if !ok || !basis.Equal(dec("447.3")) {
				t.Errorf("premium-adjusted basis = %s, want 447.3", basis)
			}
		})
	}
}

func TestReplayUntil(t *testing.T) {
	events := []models.TradeEvent{
		sellPut(1, "AAPL", "150", "1.50", 1, 0),
		sellPut(2, "MSFT", "400", "3.00", 1, 5),
		sellPut(3, "NVDA", "800", "10.00", 1, 10),
	}
	b, err := ReplayUntil(events, DefaultOptions(), at(5))
	if err != nil {
		t.Fatalf("ReplayUntil() error = %v", err)
	}
	if b.Applied() != 2 {
		t.Errorf("Applied() = %d, want 2", b.Applied())
	}
	if want := dec("450"); !b.RealizedPremium().Equal(want) {
		t.Errorf("RealizedPremium() = %s, want %s", b.RealizedPremium(), want)
	}
	if want := dec("55000"); !b.DeployedCapital(at(5)).Equal(want) {
		t.Errorf("DeployedCapital() = %s, want %s", b.DeployedCapital(at(5)), want)
	}
}
