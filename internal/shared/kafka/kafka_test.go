package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBrokers(t *testing.T) {
	assert.Nil(t, Brokers(""))
	assert.Equal(t, []string{"a:9092"}, Brokers("a:9092"))
	assert.Equal(t, []string{"a:9092", "b:9092"}, Brokers(" a:9092, ,b:9092 "))
}

func TestNewWriter(t *testing.T) {
	w := NewWriter([]string{"a:9092", "b:9092"}, "price_updates")
	defer w.Close()

	assert.Equal(t, "price_updates", w.Topic)
	assert.Contains(t, w.Addr.String(), "a:9092")
	assert.True(t, w.AllowAutoTopicCreation)
}
