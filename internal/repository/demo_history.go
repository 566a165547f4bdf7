package repository

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"EduX/internal/domain/models"

	"github.com/shopspring/decimal"
)

const (
	demoStep      = 10 * time.Second
	demoStartPx   = 0.75
	demoMinPx     = 0.5
	demoMaxPx     = 1.0
	demoMaxDrift  = 0.01
	demoMinQty    = 10
	demoQtySpread = 90
)

// DemoHistory generates a random-walk trade window for environments
// without an archive. Trade ids equal the trade's create_timestamp so
// they never collide with the feed's sequence ids.
type DemoHistory struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// NewDemoHistory creates a generator. A zero seed uses the clock.
func NewDemoHistory(seed int64) *DemoHistory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DemoHistory{rnd: rand.New(rand.NewSource(seed)), now: time.Now}
}

func (d *DemoHistory) RecentTrades(ctx context.Context, ticker string, window time.Duration) ([]models.Trade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	end := d.now().UnixMilli()
	start := end - window.Milliseconds()
	step := demoStep.Milliseconds()

	out := make([]models.Trade, 0, window/demoStep+1)
	price := demoStartPx
	for ts := start; ts <= end; ts += step {
		price += (d.rnd.Float64() - 0.5) * 2 * demoMaxDrift
		price = math.Min(demoMaxPx, math.Max(demoMinPx, price))
		px, _ := decimal.NewFromFloat(price).Round(4).Float64()
		out = append(out, models.Trade{
			TradeID:     ts,
			Ticker:      ticker,
			Price:       px,
			Quantity:    float64(demoMinQty + d.rnd.Intn(demoQtySpread)),
			EventTimeMs: ts,
		})
	}
	return out, nil
}
