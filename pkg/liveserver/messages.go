package liveserver

import "time"

// Message is the envelope of every stream update
type Message struct {
	Type               string      `json:"type"`
	Data               interface{} `json:"data"`
	TotalOpportunities int         `json:"total_opportunities"`
	Timestamp          time.Time   `json:"timestamp"`
}

// MessageType constants
const (
	TypeFundingUpdate   = "funding_update"
	TypeArbitrageUpdate = "arbitrage_update"
	TypeHealth          = "health"
)

// NewMessage stamps a message with the current time
func NewMessage(msgType string, data interface{}, total int) Message {
	return Message{
		Type:               msgType,
		Data:               data,
		TotalOpportunities: total,
		Timestamp:          time.Now().UTC(),
	}
}
