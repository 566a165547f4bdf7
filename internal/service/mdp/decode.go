package mdp

import (
	"encoding/json"

	"EduX/internal/domain/models"
)

type wireMessage struct {
	Ticker          string          `json:"ticker"`
	Symbol          string          `json:"symbol"`
	Bids            *[]models.Level `json:"bids"`
	Asks            *[]models.Level `json:"asks"`
	TradeID         *int64          `json:"trade_id"`
	Price           float64         `json:"price"`
	Quantity        float64         `json:"quantity"`
	CreateTimestamp int64           `json:"create_timestamp"` // ms
}

// Decode parses one MDP frame. A frame carrying both bids and asks is an
// order book snapshot; otherwise a frame carrying trade_id is a trade.
// Anything else, including invalid JSON, is reported as not ok.
func Decode(b []byte) (models.Event, bool) {
	var m wireMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return models.Event{}, false
	}
	ticker := m.Ticker
	if ticker == "" {
		ticker = m.Symbol
	}

	switch {
	case m.Bids != nil && m.Asks != nil:
		return models.BookEvent(&models.OrderBookSnapshot{
			Ticker: ticker,
			Bids:   *m.Bids,
			Asks:   *m.Asks,
		}), true
	case m.TradeID != nil:
		return models.TradeEvent(&models.Trade{
			TradeID:     *m.TradeID,
			Ticker:      ticker,
			Price:       m.Price,
			Quantity:    m.Quantity,
			EventTimeMs: m.CreateTimestamp,
		}), true
	default:
		return models.Event{}, false
	}
}
