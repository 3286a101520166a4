package services

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/backyardfi/vaultledger/internal/store"
)

func newTestStrategyService(st store.Store) *StrategyService {
	return NewStrategyService(st, nopLogger())
}

func TestAddDepositFreezesOwnershipFraction(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	vault := seedVault(t, st, "Freeze Vault", 1000, 0.05, 2.0)
	strategy := seedStrategy(t, st, "user-1", "Main", time.Now().UTC())

	entryID, err := svc.AddDeposit(ctx, strategy.ID, vault.ID, 50) // 50 * $2 = $100
	if err != nil {
		t.Fatalf("AddDeposit failed: %v", err)
	}

	entry := entryByID(t, st, strategy.ID, entryID)
	if !approxEqual(entry.DepositedAmountUSD, 100) {
		t.Errorf("expected deposited USD 100, got %f", entry.DepositedAmountUSD)
	}
	if !approxEqual(entry.OwnershipFraction, 0.1) {
		t.Errorf("expected ownership fraction 0.1, got %f", entry.OwnershipFraction)
	}

	// A later TVL change must not move an already admitted fraction.
	vault.CurrentTVL = 5000
	if err := st.SaveVault(ctx, vault); err != nil {
		t.Fatalf("failed to update vault: %v", err)
	}
	entry = entryByID(t, st, strategy.ID, entryID)
	if !approxEqual(entry.OwnershipFraction, 0.1) {
		t.Errorf("fraction changed after TVL update: got %f", entry.OwnershipFraction)
	}
}

func TestAddDepositZeroTVLYieldsZeroFraction(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	vault := seedVault(t, st, "Empty Vault", 0, 0.05, 2.0)
	strategy := seedStrategy(t, st, "user-1", "Main", time.Now().UTC())

	entryID, err := svc.AddDeposit(ctx, strategy.ID, vault.ID, 50)
	if err != nil {
		t.Fatalf("AddDeposit failed: %v", err)
	}
	entry := entryByID(t, st, strategy.ID, entryID)
	if entry.OwnershipFraction != 0 {
		t.Errorf("expected fraction 0 for zero-TVL vault, got %f", entry.OwnershipFraction)
	}
	if !approxEqual(entry.DepositedAmountUSD, 100) {
		t.Errorf("expected deposited USD 100, got %f", entry.DepositedAmountUSD)
	}
}

func TestAddDepositRejectsInvalidAmounts(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	vault := seedVault(t, st, "Vault", 1000, 0.05, 1.0)
	strategy := seedStrategy(t, st, "user-1", "Main", time.Now().UTC())

	for _, amount := range []float64{0, -5, math.NaN(), math.Inf(1)} {
		if _, err := svc.AddDeposit(ctx, strategy.ID, vault.ID, amount); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("amount %v: expected ErrInvalidInput, got %v", amount, err)
		}
	}
}

func TestAddDepositUnknownReferences(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	vault := seedVault(t, st, "Vault", 1000, 0.05, 1.0)
	strategy := seedStrategy(t, st, "user-1", "Main", time.Now().UTC())

	if _, err := svc.AddDeposit(ctx, "no-such-strategy", vault.ID, 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown strategy, got %v", err)
	}
	if _, err := svc.AddDeposit(ctx, strategy.ID, "no-such-vault", 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown vault, got %v", err)
	}
}

func TestCreateStrategyWithDeposits(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	vaultA := seedVault(t, st, "Vault A", 1000, 0.05, 1.0)
	vaultB := seedVault(t, st, "Vault B", 2000, 0.09, 2.0)

	strategy, err := svc.CreateStrategy(ctx, "user-1", "Diversified", map[string]float64{
		vaultA.ID: 100,
		vaultB.ID: 50,
	})
	if err != nil {
		t.Fatalf("CreateStrategy failed: %v", err)
	}

	entries, err := st.ListEntriesByStrategy(ctx, strategy.ID)
	if err != nil {
		t.Fatalf("failed to list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
}

func TestDeleteStrategyRemovesEntries(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	vault := seedVault(t, st, "Vault", 1000, 0.05, 1.0)
	strategy := seedStrategy(t, st, "user-1", "Main", time.Now().UTC())
	seedEntry(t, st, strategy.ID, vault.ID, 100, 0.1, time.Now().UTC())

	if err := svc.DeleteStrategy(ctx, strategy.ID); err != nil {
		t.Fatalf("DeleteStrategy failed: %v", err)
	}
	if _, err := st.GetStrategy(ctx, strategy.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected strategy to be gone, got %v", err)
	}
	entries, err := st.ListEntriesByVault(ctx, vault.ID)
	if err != nil {
		t.Fatalf("failed to list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected ledger entries to cascade, %d remain", len(entries))
	}

	if err := svc.DeleteStrategy(ctx, strategy.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestStrategyInfoBlendsAPYByExposure(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	// Exposures of $100 at 5% and $300 at 9% blend to 8%.
	vaultA := seedVault(t, st, "Vault A", 1000, 0.05, 1.0)
	vaultB := seedVault(t, st, "Vault B", 1000, 0.09, 1.0)
	strategy := seedStrategy(t, st, "user-1", "Main", time.Now().UTC())
	seedEntry(t, st, strategy.ID, vaultA.ID, 100, 0.1, time.Now().UTC())
	seedEntry(t, st, strategy.ID, vaultB.ID, 300, 0.3, time.Now().UTC())

	info, err := svc.GetStrategyInfo(ctx, strategy.ID)
	if err != nil {
		t.Fatalf("GetStrategyInfo failed: %v", err)
	}
	if !approxEqual(info.DepositedAmount, 400) {
		t.Errorf("expected strategy exposure 400, got %f", info.DepositedAmount)
	}
	if !approxEqual(info.APY, 0.08) {
		t.Errorf("expected blended APY 0.08, got %f", info.APY)
	}
	if len(info.Vaults) != 2 {
		t.Fatalf("expected 2 vault holdings, got %d", len(info.Vaults))
	}
}

func TestStrategyInfoEmptyStrategy(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	strategy := seedStrategy(t, st, "user-1", "Empty", time.Now().UTC())

	info, err := svc.GetStrategyInfo(ctx, strategy.ID)
	if err != nil {
		t.Fatalf("GetStrategyInfo failed: %v", err)
	}
	if info.DepositedAmount != 0 || info.APY != 0 {
		t.Errorf("expected zero exposure and APY, got %f / %f", info.DepositedAmount, info.APY)
	}

	if _, err := svc.GetStrategyInfo(ctx, "no-such-strategy"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStrategyHistoryBucketsByMinute(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	vaultA := seedVault(t, st, "Vault A", 1000, 0.05, 1.0)
	vaultB := seedVault(t, st, "Vault B", 1000, 0.09, 1.0)
	strategy := seedStrategy(t, st, "user-1", "Main", base)
	seedEntry(t, st, strategy.ID, vaultA.ID, 100, 0.1, base)
	seedEntry(t, st, strategy.ID, vaultB.ID, 300, 0.3, base)

	// Same minute, seconds apart: both snapshots land in one bucket.
	seedSnapshot(t, st, vaultA.ID, base.Add(time.Minute+5*time.Second), 1000, 0.05, 1.0)
	seedSnapshot(t, st, vaultB.ID, base.Add(time.Minute+40*time.Second), 1000, 0.09, 1.0)

	points, err := svc.GetStrategyHistory(ctx, strategy.ID)
	if err != nil {
		t.Fatalf("GetStrategyHistory failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 bucketed point, got %d", len(points))
	}
	point := points[0]
	if !point.RecordedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("expected bucket at %v, got %v", base.Add(time.Minute), point.RecordedAt)
	}
	if !approxEqual(point.PositionUSD, 400) {
		t.Errorf("expected position 400, got %f", point.PositionUSD)
	}
	if !approxEqual(point.APY, 0.08) {
		t.Errorf("expected weighted APY 0.08, got %f", point.APY)
	}
}

func TestStrategyHistoryTracksTVL(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	vault := seedVault(t, st, "Vault", 1000, 0.05, 1.0)
	strategy := seedStrategy(t, st, "user-1", "Main", base)
	seedEntry(t, st, strategy.ID, vault.ID, 100, 0.1, base)

	seedSnapshot(t, st, vault.ID, base.Add(1*time.Minute), 1000, 0.05, 1.0)
	seedSnapshot(t, st, vault.ID, base.Add(2*time.Minute), 1500, 0.05, 1.0)
	seedSnapshot(t, st, vault.ID, base.Add(3*time.Minute), 800, 0.05, 1.0)

	points, err := svc.GetStrategyHistory(ctx, strategy.ID)
	if err != nil {
		t.Fatalf("GetStrategyHistory failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	want := []float64{100, 150, 80}
	for i, point := range points {
		if !approxEqual(point.PositionUSD, want[i]) {
			t.Errorf("point %d: expected position %f, got %f", i, want[i], point.PositionUSD)
		}
	}
	for i := 1; i < len(points); i++ {
		if !points[i].RecordedAt.After(points[i-1].RecordedAt) {
			t.Errorf("points not in ascending time order at index %d", i)
		}
	}
}

func TestStrategyHistorySkipsSnapshotsBeforeDeposit(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	vaultA := seedVault(t, st, "Vault A", 1000, 0.05, 1.0)
	vaultB := seedVault(t, st, "Vault B", 1000, 0.09, 1.0)
	strategy := seedStrategy(t, st, "user-1", "Main", base)
	seedEntry(t, st, strategy.ID, vaultA.ID, 100, 0.1, base)
	// Vault B joined the strategy ten minutes later.
	seedEntry(t, st, strategy.ID, vaultB.ID, 300, 0.3, base.Add(10*time.Minute))

	seedSnapshot(t, st, vaultA.ID, base.Add(5*time.Minute), 1000, 0.05, 1.0)
	seedSnapshot(t, st, vaultB.ID, base.Add(5*time.Minute), 1000, 0.09, 1.0)
	seedSnapshot(t, st, vaultA.ID, base.Add(15*time.Minute), 1000, 0.05, 1.0)
	seedSnapshot(t, st, vaultB.ID, base.Add(15*time.Minute), 1000, 0.09, 1.0)

	points, err := svc.GetStrategyHistory(ctx, strategy.ID)
	if err != nil {
		t.Fatalf("GetStrategyHistory failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	// First bucket predates vault B's entry: only vault A counts.
	if !approxEqual(points[0].PositionUSD, 100) {
		t.Errorf("expected early position 100, got %f", points[0].PositionUSD)
	}
	if !approxEqual(points[1].PositionUSD, 400) {
		t.Errorf("expected later position 400, got %f", points[1].PositionUSD)
	}
}

func TestStrategyHistoryEmptyWithoutEntries(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	strategy := seedStrategy(t, st, "user-1", "Empty", time.Now().UTC())

	points, err := svc.GetStrategyHistory(ctx, strategy.ID)
	if err != nil {
		t.Fatalf("GetStrategyHistory failed: %v", err)
	}
	if points == nil || len(points) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", points)
	}
}

func TestPortfolioHistoryRollsUpHourly(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	vaultA := seedVault(t, st, "Vault A", 1000, 0.05, 1.0)
	vaultB := seedVault(t, st, "Vault B", 1000, 0.09, 1.0)
	strategyA := seedStrategy(t, st, "user-1", "Alpha", base)
	strategyB := seedStrategy(t, st, "user-1", "Beta", base)
	seedEntry(t, st, strategyA.ID, vaultA.ID, 100, 0.1, base)
	seedEntry(t, st, strategyB.ID, vaultB.ID, 300, 0.3, base)

	// Minute points inside the same hour collapse into one portfolio bucket.
	seedSnapshot(t, st, vaultA.ID, base.Add(10*time.Minute), 1000, 0.05, 1.0)
	seedSnapshot(t, st, vaultB.ID, base.Add(20*time.Minute), 1000, 0.09, 1.0)
	// And a second hour.
	seedSnapshot(t, st, vaultA.ID, base.Add(70*time.Minute), 2000, 0.05, 1.0)

	points, err := svc.GetPortfolioHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetPortfolioHistory failed: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 hourly points, got %d", len(points))
	}

	first := points[0]
	if !first.RecordedAt.Equal(base) {
		t.Errorf("expected first bucket at %v, got %v", base, first.RecordedAt)
	}
	if !approxEqual(first.TotalPositionUSD, 400) {
		t.Errorf("expected total position 400, got %f", first.TotalPositionUSD)
	}
	if !approxEqual(first.AvgAPY, 0.08) {
		t.Errorf("expected weighted APY 0.08, got %f", first.AvgAPY)
	}

	second := points[1]
	if !approxEqual(second.TotalPositionUSD, 200) {
		t.Errorf("expected second-hour position 200, got %f", second.TotalPositionUSD)
	}
}

func TestPortfolioHistoryEmptyWithoutStrategies(t *testing.T) {
	ctx := testContext(t)
	st := store.NewMemory()
	svc := newTestStrategyService(st)

	points, err := svc.GetPortfolioHistory(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetPortfolioHistory failed: %v", err)
	}
	if points == nil || len(points) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", points)
	}
}
