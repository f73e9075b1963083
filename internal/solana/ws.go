package solana

import "context"

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to transaction logs matching the filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (*LogSubscription, error)

	// Unsubscribe cancels a subscription and closes its channel.
	Unsubscribe(ctx context.Context, sub *LogSubscription) error

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs of transactions that mention any of these accounts.
	Mentions []string
}

// LogSubscription is a live logs subscription. C is closed on Unsubscribe or Close.
type LogSubscription struct {
	C      <-chan LogNotification
	handle uint64
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}
