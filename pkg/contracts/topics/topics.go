package topics

const (
	// Kafka: cada atualização de preço bem-sucedida
	PriceUpdates = "price_updates"

	// Redis Pub/Sub: espelho do broadcast para consumidores downstream
	PricesBroadcast = "price_updates_broadcast"

	// Redis: chave com o último snapshot publicado
	PricesSnapshotKey = "prices:snapshot"
)
