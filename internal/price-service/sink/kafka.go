package sink

import (
	"context"
	"encoding/json"

	"github.com/radieske/crypto-price-stream/internal/shared/kafka"
	"github.com/radieske/crypto-price-stream/pkg/contracts/events"
)

// KafkaSink escreve cada atualização no tópico de preços; a chave é o tipo da mensagem
// para manter a ordem numa única partição
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(w *kafka.Writer) *KafkaSink {
	return &KafkaSink{writer: w}
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Publish(ctx context.Context, update events.PriceUpdate) error {
	value, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return kafka.WriteJSON(ctx, k.writer, update.Type, value, update.Timestamp)
}

// Close finaliza o writer e libera recursos associados.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
