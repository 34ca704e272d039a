package topics

const (
	// Pagamentos de mercados resolvidos (DistributeWinnings)
	MarketPayouts = "market_payouts"

	// DLQs
	MarketPayoutsDLQ = "market_payouts_dlq"

	// Canal Redis Pub/Sub com snapshots de mercado (MarketSynced)
	MarketUpdates = "market_updates"
)
