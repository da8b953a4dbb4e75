package ws

import (
	"encoding/json"
	"time"

	"github.com/radieske/crypto-price-stream/internal/price-service/store"
	"github.com/radieske/crypto-price-stream/pkg/contracts/events"
)

// Inbound é a mensagem do cliente já classificada
type Inbound int

const (
	InboundUnrecognized Inbound = iota
	InboundPing
)

// ParseInbound nunca falha: payload inválido ou tipo desconhecido vira InboundUnrecognized
func ParseInbound(payload []byte) Inbound {
	var msg events.ClientMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		return InboundUnrecognized
	}
	if msg.Type == events.TypePing {
		return InboundPing
	}
	return InboundUnrecognized
}

// EncodePriceUpdate serializa o snapshot atual uma única vez
func EncodePriceUpdate(src store.Reader, at time.Time) ([]byte, error) {
	return json.Marshal(events.NewPriceUpdate(src.Snapshot(), at.UTC()))
}

var pongPayload, _ = json.Marshal(events.Pong{Type: events.TypePong})
