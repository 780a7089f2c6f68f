package sheets

import (
	"context"

	"envelopes/internal/core"
)

// Ports for outbound adapters.
type (
	// LedgerWriter mirrors one ledger row to the external sheet and returns
	// a reference to the written row.
	LedgerWriter interface {
		Append(ctx context.Context, t core.Transaction, categoryName string) (rowRef string, err error)
	}

	// LedgerRemover removes a previously mirrored row.
	LedgerRemover interface {
		Remove(ctx context.Context, transactionID string) error
	}
)
