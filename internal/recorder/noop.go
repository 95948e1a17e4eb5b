package recorder

import (
	"context"

	"BotInvest/internal/ledger"
	"BotInvest/internal/screener"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordScreening(context.Context, *screener.Result) error { return nil }
func (n *NoopRecorder) RecordEquity(context.Context, *ledger.Valuation) error   { return nil }
func (n *NoopRecorder) Close() error                                            { return nil }
