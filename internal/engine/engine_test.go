package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-price-alerts/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func buy(t *testing.T, v string) model.PriceThreshold {
	t.Helper()
	th, err := model.NewPriceThreshold(model.SideBuy, decimal.RequireFromString(v))
	require.NoError(t, err)
	return th
}

func sell(t *testing.T, v string) model.PriceThreshold {
	t.Helper()
	th, err := model.NewPriceThreshold(model.SideSell, decimal.RequireFromString(v))
	require.NoError(t, err)
	return th
}

func rsiKey(t *testing.T, s string) model.RSIThreshold {
	t.Helper()
	th, err := model.ParseRSIThreshold(s)
	require.NoError(t, err)
	return th
}

func price(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestManualResetModeFiresOnce(t *testing.T) {
	clock := newFakeClock()
	st := New(clock.Now)
	th := buy(t, "1.0")
	st.Configure(Settings{Buy: []model.PriceThreshold{th}})

	fires := 0
	for i := 0; i < 10; i++ {
		if _, ok := st.TryFire(th, price("0.9")); ok {
			fires++
		}
		clock.Advance(24 * time.Hour)
	}
	assert.Equal(t, 1, fires)

	assert.True(t, st.Reset(th))
	_, ok := st.TryFire(th, price("0.9"))
	assert.True(t, ok, "reset re-arms the threshold")
}

func TestCooldownSeparatesFires(t *testing.T) {
	clock := newFakeClock()
	st := New(clock.Now)
	th := sell(t, "2.0")
	st.Configure(Settings{Cooldown: 10 * time.Minute, Sell: []model.PriceThreshold{th}})

	var fireTimes []time.Time
	for i := 0; i < 60; i++ {
		if fire, ok := st.TryFire(th, price("2.5")); ok {
			fireTimes = append(fireTimes, fire.At)
		}
		clock.Advance(time.Minute)
	}
	require.Len(t, fireTimes, 6)
	for i := 1; i < len(fireTimes); i++ {
		assert.GreaterOrEqual(t, fireTimes[i].Sub(fireTimes[i-1]), 10*time.Minute)
	}
}

func TestCooldownExpiredButConditionUnmetDoesNotConsume(t *testing.T) {
	clock := newFakeClock()
	st := New(clock.Now)
	th := buy(t, "1.0")
	st.Configure(Settings{Cooldown: 5 * time.Minute, Buy: []model.PriceThreshold{th}})

	_, ok := st.TryFire(th, price("0.95"))
	require.True(t, ok)

	clock.Advance(6 * time.Minute)
	_, ok = st.TryFire(th, price("1.10"))
	assert.False(t, ok)

	clock.Advance(time.Minute)
	fire, ok := st.TryFire(th, price("0.99"))
	assert.True(t, ok, "fire is not suppressed once cooldown elapsed and price qualifies")
	assert.Equal(t, clock.Now(), fire.At)
}

func TestShouldAlertDoesNotCommit(t *testing.T) {
	clock := newFakeClock()
	st := New(clock.Now)
	th := buy(t, "1.0")
	st.Configure(Settings{Buy: []model.PriceThreshold{th}})

	allowed, ts := st.ShouldAlert(th)
	require.True(t, allowed)
	assert.Equal(t, clock.Now(), ts)

	allowed, _ = st.ShouldAlert(th)
	assert.True(t, allowed, "deciding is side-effect free until commit")

	st.Commit(th, ts)
	allowed, zero := st.ShouldAlert(th)
	assert.False(t, allowed)
	assert.True(t, zero.IsZero())
}

func TestShouldAlertPurgesStaleRecord(t *testing.T) {
	clock := newFakeClock()
	st := New(clock.Now)
	th := buy(t, "1.0")
	st.Configure(Settings{Cooldown: time.Minute, Buy: []model.PriceThreshold{th}})
	st.Commit(th, clock.Now())

	clock.Advance(2 * time.Minute)
	allowed, _ := st.ShouldAlert(th)
	require.True(t, allowed)
	_, present := st.Snapshot().Records.Price[th]
	assert.False(t, present)
}

func TestPruneAndReAddStartsFresh(t *testing.T) {
	clock := newFakeClock()
	st := New(clock.Now)
	th := buy(t, "1.0")
	other := buy(t, "0.5")
	st.Configure(Settings{Cooldown: time.Hour, Buy: []model.PriceThreshold{th, other}})

	_, ok := st.TryFire(th, price("0.9"))
	require.True(t, ok)

	pruned := st.Configure(Settings{Cooldown: time.Hour, Buy: []model.PriceThreshold{other}})
	assert.Equal(t, 1, pruned)
	assert.Empty(t, st.Snapshot().Records.Price)

	st.Configure(Settings{Cooldown: time.Hour, Buy: []model.PriceThreshold{th, other}})
	_, ok = st.TryFire(th, price("0.9"))
	assert.True(t, ok, "re-added threshold has no cooldown memory")
}

func TestReconcileReplacesRecordsAndPrunes(t *testing.T) {
	clock := newFakeClock()
	st := New(clock.Now)
	th := buy(t, "1.0")
	gone := sell(t, "3.0")
	r := rsiKey(t, "above:70")
	goneRSI := rsiKey(t, "below:10")

	persisted := NewRecords()
	persisted.Price[th] = clock.Now()
	persisted.Price[gone] = clock.Now()
	persisted.RSI[r] = clock.Now()
	persisted.RSI[goneRSI] = clock.Now()

	pruned := st.Reconcile(Settings{Buy: []model.PriceThreshold{th}, RSI: []model.RSIThreshold{r}}, persisted)
	assert.Equal(t, 2, pruned)

	snap := st.Snapshot()
	assert.Len(t, snap.Records.Price, 1)
	assert.Len(t, snap.Records.RSI, 1)
	assert.Len(t, persisted.Price, 2, "caller's maps are not mutated")

	// an external reset shows up as an absent key on the next reconcile
	st.Reconcile(Settings{Buy: []model.PriceThreshold{th}, RSI: []model.RSIThreshold{r}}, NewRecords())
	_, ok := st.TryFire(th, price("0.5"))
	assert.True(t, ok)
}

func TestSweepExpiredClearsOnlyQualifyingRecords(t *testing.T) {
	clock := newFakeClock()
	st := New(clock.Now)
	qualifying := buy(t, "1.0")
	notQualifying := buy(t, "0.5")
	fresh := sell(t, "1.0")
	st.Configure(Settings{
		Cooldown: 5 * time.Minute,
		Buy:      []model.PriceThreshold{qualifying, notQualifying},
		Sell:     []model.PriceThreshold{fresh},
	})

	assert.Nil(t, st.SweepExpired(), "no prices observed yet")

	st.Commit(qualifying, clock.Now())
	st.Commit(notQualifying, clock.Now())
	clock.Advance(6 * time.Minute)
	st.Commit(fresh, clock.Now())
	st.ObservePrices(model.PriceSample{Timestamp: clock.Now(), BuyPrice: price("0.8"), SellPrice: price("1.2")})

	cleared := st.SweepExpired()
	assert.Equal(t, []model.PriceThreshold{qualifying}, cleared)

	records := st.Snapshot().Records.Price
	assert.NotContains(t, records, qualifying)
	assert.Contains(t, records, notQualifying)
	assert.Contains(t, records, fresh)
}

func TestSweepIsNoopInManualMode(t *testing.T) {
	clock := newFakeClock()
	st := New(clock.Now)
	th := buy(t, "1.0")
	st.Configure(Settings{Buy: []model.PriceThreshold{th}})
	st.Commit(th, clock.Now())
	st.ObservePrices(model.PriceSample{BuyPrice: price("0.5"), SellPrice: price("0.5")})
	clock.Advance(time.Hour)

	assert.Empty(t, st.SweepExpired())
}

func TestRSIWithoutRearmNeverRefires(t *testing.T) {
	st := New(newFakeClock().Now)
	key := rsiKey(t, "above:75")
	st.Configure(Settings{RSI: []model.RSIThreshold{key}})

	fires := 0
	for _, v := range []float64{80, 70, 80, 60, 90, 74, 76} {
		if tr, _ := st.EvaluateRSI(key, v); tr == Fired {
			fires++
		}
	}
	assert.Equal(t, 1, fires)
	assert.True(t, st.Triggered(key))

	assert.True(t, st.ResetRSI(key))
	tr, _ := st.EvaluateRSI(key, 80)
	assert.Equal(t, Fired, tr)
}

func TestRSIWithRearmFiresTwice(t *testing.T) {
	st := New(newFakeClock().Now)
	key := rsiKey(t, "above:75")
	st.Configure(Settings{Rearm: true, RSI: []model.RSIThreshold{key}})

	var transitions []Transition
	for _, v := range []float64{80, 70, 80} {
		tr, _ := st.EvaluateRSI(key, v)
		transitions = append(transitions, tr)
	}
	assert.Equal(t, []Transition{Fired, Rearmed, Fired}, transitions)
}

func TestRSIBelowDirection(t *testing.T) {
	st := New(newFakeClock().Now)
	key := rsiKey(t, "below:30")
	st.Configure(Settings{Rearm: true, RSI: []model.RSIThreshold{key}})

	tr, _ := st.EvaluateRSI(key, 35)
	assert.Equal(t, Unchanged, tr)
	tr, at := st.EvaluateRSI(key, 25)
	assert.Equal(t, Fired, tr)
	assert.False(t, at.IsZero())
	tr, _ = st.EvaluateRSI(key, 28)
	assert.Equal(t, Unchanged, tr, "still in zone")
	tr, _ = st.EvaluateRSI(key, 31)
	assert.Equal(t, Rearmed, tr)
}

func TestConcurrentSweepAndFireDoNotRace(t *testing.T) {
	clock := newFakeClock()
	st := New(clock.Now)
	th := buy(t, "1.0")
	st.Configure(Settings{Cooldown: time.Nanosecond, Buy: []model.PriceThreshold{th}})
	st.ObservePrices(model.PriceSample{BuyPrice: price("0.5"), SellPrice: price("0.5")})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				st.TryFire(th, price("0.5"))
				clock.Advance(time.Millisecond)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				st.SweepExpired()
			}
		}()
	}
	wg.Wait()
}
