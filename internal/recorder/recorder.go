package recorder

import (
	"context"

	"BotInvest/internal/ledger"
	"BotInvest/internal/screener"
)

// Recorder keeps a historical journal of screening runs and equity marks for
// later analysis. It never feeds back into screening or the ledger.
type Recorder interface {
	RecordScreening(ctx context.Context, res *screener.Result) error
	RecordEquity(ctx context.Context, v *ledger.Valuation) error
	Close() error
}
