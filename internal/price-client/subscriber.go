package priceclient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/crypto-price-stream/pkg/contracts/events"
)

// RedisSubscriber escuta o canal Pub/Sub onde o price-service espelha cada atualização
type RedisSubscriber struct {
	Client   *redis.Client
	Channel  string
	Log      *zap.Logger
	OnUpdate func(events.PriceUpdate)
}

// Run bloqueia até o ctx ser cancelado
func (s *RedisSubscriber) Run(ctx context.Context) error {
	sub := s.Client.Subscribe(ctx, s.Channel)
	defer sub.Close() // encerra a inscrição ao finalizar o contexto

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	s.Log.Info("subscribed to redis channel", zap.String("channel", s.Channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ctx.Err()
			}
			var upd events.PriceUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &upd); err != nil {
				s.Log.Warn("redis subscriber unmarshal error", zap.Error(err))
				continue
			}
			if s.OnUpdate != nil {
				s.OnUpdate(upd)
			}
		}
	}
}

// KafkaConsumer lê o tópico de preços gravado pelo sink Kafka
type KafkaConsumer struct {
	Reader   *kafka.Reader
	Log      *zap.Logger
	OnUpdate func(events.PriceUpdate)
	OnError  func(phase string) // métricas por fase
}

// Run inicia o loop de consumo; erros de leitura são logados e tentados de novo
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			c.fail("read")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		var upd events.PriceUpdate
		if err := json.Unmarshal(m.Value, &upd); err != nil || upd.Type != events.TypePriceUpdate {
			c.Log.Warn("invalid message", zap.Error(err), zap.Int64("offset", m.Offset))
			c.fail("decode")
			continue
		}
		if c.OnUpdate != nil {
			c.OnUpdate(upd)
		}
	}
}

func (c *KafkaConsumer) fail(phase string) {
	if c.OnError != nil {
		c.OnError(phase)
	}
}
