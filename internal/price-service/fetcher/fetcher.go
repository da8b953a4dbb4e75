package fetcher

import (
	"context"
	"errors"
	"time"
)

// Erros de fetch classificáveis com errors.Is.
// Qualquer falha de transporte, status ou parse vira ErrUnavailable
var (
	ErrTimeout     = errors.New("price source timeout")
	ErrUnavailable = errors.New("price source unavailable")
)

// Fetcher busca o preço atual dos símbolos pedidos.
// Símbolos ausentes na resposta são omitidos do mapa retornado
type Fetcher interface {
	Fetch(ctx context.Context, symbols []string, timeout time.Duration) (map[string]float64, error)
}

// FetchFunc adapta uma função comum para a interface Fetcher
type FetchFunc func(ctx context.Context, symbols []string, timeout time.Duration) (map[string]float64, error)

func (f FetchFunc) Fetch(ctx context.Context, symbols []string, timeout time.Duration) (map[string]float64, error) {
	return f(ctx, symbols, timeout)
}
