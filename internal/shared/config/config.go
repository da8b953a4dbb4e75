package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	ctopics "github.com/radieske/crypto-price-stream/pkg/contracts/topics"
)

// Asset associa o símbolo exposto aos clientes (ex: "btc") ao id usado na fonte de preços (ex: "bitcoin")
type Asset struct {
	Symbol   string
	SourceID string
}

// Config centraliza variáveis de ambiente e parâmetros de execução dos serviços
// Tudo é lido uma única vez na inicialização (sem hot reload)
type Config struct {
	Env         string // "local", "dev", "prod"
	ServiceName string // ex: "price-service", "price-source-simulator", ...
	LogLevel    string

	// Bind do servidor atual
	Host        string
	HTTPPort    string // Porta pública (WebSocket + REST)
	MetricsPort string // Porta exclusiva para /metrics e /healthz

	// Fonte externa de preços
	PriceSourceURL  string
	QuoteCurrency   string
	TrackedAssets   []Asset
	RefreshInterval time.Duration
	FetchTimeout    time.Duration

	// Limites por conexão WebSocket
	WSMaxMessageBytes int64
	WSWriteWait       time.Duration
	WSInboundRate     float64 // mensagens/s aceitas por conexão
	WSInboundBurst    int

	ShutdownTimeout time.Duration

	// Sinks opcionais (vazio desabilita)
	RedisAddr          string
	RedisPubSubChannel string
	RedisSnapshotTTL   time.Duration
	KafkaBrokers       string // "a:9092,b:9092"
	TopicPriceUpdates  string

	// Cliente de referência
	PriceStreamURL     string
	ClientPingInterval time.Duration
	ClientSource       string // "ws" (padrão), "redis" ou "kafka"
	KafkaGroupID       string
}

// Load carrega .env (se existir), variáveis de ambiente e define defaults para cada serviço
// Resolve portas conforme o SERVICE_NAME
func Load() (Config, error) {
	_ = godotenv.Load() // .env é opcional; variáveis já definidas no ambiente têm precedência

	svc := getEnv("SERVICE_NAME", "price-service")
	env := getEnv("ENV", "local")

	cfg := Config{
		Env:         env,
		ServiceName: svc,
		LogLevel:    getEnv("LOG_LEVEL", ""),

		Host: getEnv("HOST", "0.0.0.0"),

		PriceSourceURL: strings.TrimSuffix(getEnv("PRICE_SOURCE_URL", "https://api.coingecko.com/api/v3"), "/"),
		QuoteCurrency:  strings.ToLower(getEnv("QUOTE_CURRENCY", "usd")),

		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPubSubChannel: getEnv("REDIS_PUBSUB_CHANNEL", ctopics.PricesBroadcast),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		TopicPriceUpdates:  getEnv("KAFKA_TOPIC_PRICES", ctopics.PriceUpdates),

		PriceStreamURL: getEnv("PRICE_STREAM_URL", "ws://localhost:8765/ws"),
		ClientSource:   strings.ToLower(getEnv("CLIENT_SOURCE", "ws")),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", "price-stream-client"),
	}

	var err error
	if cfg.TrackedAssets, err = parseAssets(getEnv("TRACKED_ASSETS", "btc:bitcoin,eth:ethereum")); err != nil {
		return Config{}, err
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"REFRESH_INTERVAL", "10s", &cfg.RefreshInterval},
		{"FETCH_TIMEOUT", "10s", &cfg.FetchTimeout},
		{"WS_WRITE_WAIT", "2s", &cfg.WSWriteWait},
		{"SHUTDOWN_TIMEOUT", "5s", &cfg.ShutdownTimeout},
		{"REDIS_SNAPSHOT_TTL", "60s", &cfg.RedisSnapshotTTL},
		{"CLIENT_PING_INTERVAL", "30s", &cfg.ClientPingInterval},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, d.def); err != nil {
			return Config{}, err
		}
	}

	if cfg.WSMaxMessageBytes, err = getInt64("WS_MAX_MESSAGE_BYTES", 4096); err != nil {
		return Config{}, err
	}
	if cfg.WSInboundRate, err = getFloat("WS_INBOUND_RATE", 5); err != nil {
		return Config{}, err
	}
	burst, err := getInt64("WS_INBOUND_BURST", 10)
	if err != nil {
		return Config{}, err
	}
	cfg.WSInboundBurst = int(burst)

	// Define portas padrão para cada serviço
	switch svc {
	case "price-source-simulator":
		cfg.HTTPPort = getEnv("HTTP_PORT_SIMULATOR", "8081")
		cfg.MetricsPort = getEnv("METRICS_PORT_SIMULATOR", "9094")
	case "price-stream-client":
		cfg.HTTPPort = ""
		cfg.MetricsPort = getEnv("METRICS_PORT_CLIENT", "9096")
	default:
		cfg.HTTPPort = getEnv("HTTP_PORT", "8765")
		cfg.MetricsPort = getEnv("METRICS_PORT", "9095")
	}

	switch cfg.ClientSource {
	case "ws", "redis", "kafka":
	default:
		return Config{}, fmt.Errorf("CLIENT_SOURCE: expected ws, redis or kafka, got %q", cfg.ClientSource)
	}

	if cfg.RefreshInterval <= 0 || cfg.FetchTimeout <= 0 {
		return Config{}, fmt.Errorf("REFRESH_INTERVAL and FETCH_TIMEOUT must be positive")
	}
	return cfg, nil
}

// Symbols retorna os símbolos rastreados, na ordem configurada
func (c Config) Symbols() []string {
	out := make([]string, 0, len(c.TrackedAssets))
	for _, a := range c.TrackedAssets {
		out = append(out, a.Symbol)
	}
	return out
}

// SourceIDs retorna o mapa símbolo -> id da fonte externa
func (c Config) SourceIDs() map[string]string {
	out := make(map[string]string, len(c.TrackedAssets))
	for _, a := range c.TrackedAssets {
		out[a.Symbol] = a.SourceID
	}
	return out
}

// parseAssets interpreta "btc:bitcoin,eth:ethereum"; sem ":" o id da fonte é o próprio símbolo
func parseAssets(raw string) ([]Asset, error) {
	seen := make(map[string]bool)
	var out []Asset
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sym, id, found := strings.Cut(part, ":")
		sym = strings.ToLower(strings.TrimSpace(sym))
		id = strings.TrimSpace(id)
		if !found {
			id = sym
		}
		if sym == "" || id == "" {
			return nil, fmt.Errorf("TRACKED_ASSETS: invalid entry %q", part)
		}
		if seen[sym] {
			return nil, fmt.Errorf("TRACKED_ASSETS: duplicate symbol %q", sym)
		}
		seen[sym] = true
		out = append(out, Asset{Symbol: sym, SourceID: id})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("TRACKED_ASSETS: at least one asset is required")
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// getEnv retorna o valor da variável de ambiente ou o default
func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key, def string) (time.Duration, error) {
	v := getEnv(key, def)
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
	}
	return d, nil
}

func getInt64(key string, def int64) (int64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: expected positive integer, got %q", key, v)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%s: expected positive number, got %q", key, v)
	}
	return f, nil
}
