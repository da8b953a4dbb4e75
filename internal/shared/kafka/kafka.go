package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type Writer = kafka.Writer

// Brokers converte "a:9092,b:9092" em lista, ignorando entradas vazias
func Brokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewWriter cria o writer com timeouts e balanceamento por menor carga
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		ReadTimeout:            10 * time.Second,
		WriteTimeout:           10 * time.Second,
	}
}

// NewReader cria um reader em consumer group; MinBytes 1 para entregar cada mensagem sem espera
func NewReader(brokers []string, topic string, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
}

// helper pra enviar mensagem simples
func WriteJSON(ctx context.Context, w *kafka.Writer, key string, payload []byte, at time.Time) error {
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  at,
	}

	return w.WriteMessages(ctx, msg)
}

// EnsureTopic cria o tópico via controller do cluster (uso em local/dev).
// Tópico já existente não é erro
func EnsureTopic(ctx context.Context, broker, topic string) (created bool, err error) {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return false, fmt.Errorf("dial kafka: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return false, fmt.Errorf("kafka controller: %w", err)
	}

	controllerAddr := fmt.Sprintf("%s:%d", controller.Host, controller.Port)
	cconn, err := kafka.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return false, fmt.Errorf("dial kafka controller: %w", err)
	}
	defer cconn.Close()

	// single-broker: 1 partição, replicação 1
	err = cconn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return false, nil
		}
		return false, fmt.Errorf("create topic %s: %w", topic, err)
	}
	return true, nil
}
