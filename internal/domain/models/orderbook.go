package models

// Level is an aggregated price level of the order book.
type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBookSnapshot is the best-of-book view published by the market data processor.
type OrderBookSnapshot struct {
	Ticker string  `json:"ticker"`
	Bids   []Level `json:"bids"`
	Asks   []Level `json:"asks"`
}

// EventKind tags the payload carried by an Event.
type EventKind int

const (
	EventTrade EventKind = iota + 1
	EventOrderBook
)

// Event is one inbound message from a market stream.
// Exactly one of Trade or Book is set, according to Kind.
type Event struct {
	Kind  EventKind
	Trade *Trade
	Book  *OrderBookSnapshot
}

// TradeEvent wraps a trade.
func TradeEvent(t *Trade) Event { return Event{Kind: EventTrade, Trade: t} }

// BookEvent wraps an order book snapshot.
func BookEvent(b *OrderBookSnapshot) Event { return Event{Kind: EventOrderBook, Book: b} }

// Ticker returns the ticker the event refers to.
func (e Event) Ticker() string {
	switch e.Kind {
	case EventTrade:
		if e.Trade != nil {
			return e.Trade.Ticker
		}
	case EventOrderBook:
		if e.Book != nil {
			return e.Book.Ticker
		}
	}
	return ""
}
