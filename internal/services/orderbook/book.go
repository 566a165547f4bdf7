package orderbook

import (
	"sort"

	"EduX/internal/domain/models"
)

// DefaultDepth is the number of aggregated levels kept per side.
const DefaultDepth = 50

// Book holds the latest order book snapshot for the current symbol.
// Bids are kept descending by price and asks ascending.
type Book struct {
	depth int
	snap  models.OrderBookSnapshot
}

// New returns an empty book keeping at most depth levels per side.
func New(depth int) *Book {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Book{depth: depth}
}

// Apply replaces the book with a sorted copy of s. Levels with no quantity
// are padding in the feed's fixed-size arrays and are dropped.
func (b *Book) Apply(s models.OrderBookSnapshot) {
	bids := liveLevels(s.Bids)
	asks := liveLevels(s.Asks)
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })
	if len(bids) > b.depth {
		bids = bids[:b.depth]
	}
	if len(asks) > b.depth {
		asks = asks[:b.depth]
	}
	b.snap = models.OrderBookSnapshot{Ticker: s.Ticker, Bids: bids, Asks: asks}
}

// Snapshot returns a copy of the current book.
func (b *Book) Snapshot() models.OrderBookSnapshot { return b.Top(b.depth) }

// Top returns a copy limited to n levels per side.
func (b *Book) Top(n int) models.OrderBookSnapshot {
	return models.OrderBookSnapshot{
		Ticker: b.snap.Ticker,
		Bids:   head(b.snap.Bids, n),
		Asks:   head(b.snap.Asks, n),
	}
}

// Best returns the top of book. ok is false unless both sides are present.
func (b *Book) Best() (bid, ask models.Level, ok bool) {
	if len(b.snap.Bids) == 0 || len(b.snap.Asks) == 0 {
		return models.Level{}, models.Level{}, false
	}
	return b.snap.Bids[0], b.snap.Asks[0], true
}

// Spread is best ask minus best bid, or 0 when a side is empty.
func (b *Book) Spread() float64 {
	bid, ask, ok := b.Best()
	if !ok {
		return 0
	}
	return ask.Price - bid.Price
}

// Reset empties the book.
func (b *Book) Reset() { b.snap = models.OrderBookSnapshot{} }

func head(ls []models.Level, n int) []models.Level {
	if n < 0 {
		n = 0
	}
	if n > len(ls) {
		n = len(ls)
	}
	out := make([]models.Level, n)
	copy(out, ls[:n])
	return out
}

func liveLevels(ls []models.Level) []models.Level {
	out := make([]models.Level, 0, len(ls))
	for _, l := range ls {
		if l.Quantity > 0 {
			out = append(out, l)
		}
	}
	return out
}
