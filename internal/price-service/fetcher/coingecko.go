package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxBodyBytes = 1 << 20

// CoinGecko consulta o endpoint /simple/price (ou um compatível, como o price-source-simulator)
type CoinGecko struct {
	BaseURL  string            // ex: https://api.coingecko.com/api/v3
	Currency string            // moeda de cotação, ex: "usd"
	IDs      map[string]string // símbolo -> id na fonte (btc -> bitcoin)
	HTTP     *http.Client
}

var _ Fetcher = (*CoinGecko)(nil)

// NewCoinGecko cria o client com http.Client padrão; o timeout real vem de cada Fetch
func NewCoinGecko(baseURL, currency string, ids map[string]string) *CoinGecko {
	return &CoinGecko{
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
		Currency: strings.ToLower(currency),
		IDs:      ids,
		HTTP:     &http.Client{},
	}
}

// Fetch faz um GET com deadline e traduz qualquer problema para ErrTimeout ou ErrUnavailable.
// Se o contexto pai já foi cancelado o erro dele é retornado junto
func (c *CoinGecko) Fetch(ctx context.Context, symbols []string, timeout time.Duration) (map[string]float64, error) {
	bySourceID := make(map[string]string, len(symbols))
	ids := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		id, ok := c.IDs[sym]
		if !ok {
			id = sym
		}
		bySourceID[id] = sym
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no symbols requested", ErrUnavailable)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", c.Currency)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.BaseURL+"/simple/price?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, c.classify(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	// null em vez de número também é omitido
	var body map[string]map[string]*float64
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, c.classify(ctx, reqCtx, err)
	}

	out := make(map[string]float64, len(symbols))
	for id, quotes := range body {
		sym, requested := bySourceID[id]
		if !requested {
			continue
		}
		p := quotes[c.Currency]
		if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) || *p < 0 {
			continue
		}
		out[sym] = *p
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no prices for %v", ErrUnavailable, symbols)
	}
	return out, nil
}

func (c *CoinGecko) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// classify separa cancelamento do chamador, estouro do timeout e falhas gerais
func (c *CoinGecko) classify(parent, reqCtx context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return fmt.Errorf("%w: %w", ErrUnavailable, parent.Err())
	case errors.Is(reqCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}
