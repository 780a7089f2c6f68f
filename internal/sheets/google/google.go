// Package google mirrors the transaction ledger to a Google Sheets
// spreadsheet. One row per transaction: date, type, merchant, description,
// category, amount. The sheet is an export surface only; it is never read
// back into the application.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"envelopes/internal/core"
	"envelopes/internal/log"
	ports "envelopes/internal/sheets"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// Ensure interface conformance
var (
	_ ports.LedgerWriter  = (*Client)(nil)
	_ ports.LedgerRemover = (*Client)(nil)
)

// Options configures the sheets mirror.
type Options struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsJSON takes precedence; CredentialsFile is read when empty.
	CredentialsJSON []byte
	CredentialsFile string
}

func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	sheetName := strings.TrimSpace(opts.SheetName)
	if sheetName == "" {
		sheetName = "Ledger"
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentSheets)
	}

	credentials := opts.CredentialsJSON
	if len(credentials) == 0 && opts.CredentialsFile != "" {
		var err error
		credentials, err = os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
	}
	if len(credentials) == 0 {
		return nil, errors.New("missing sheets credentials")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
	}, nil
}

// Append writes one ledger row and returns its A1 reference. The transaction
// id lands in the first column so Remove can find the row later.
func (c *Client) Append(ctx context.Context, t core.Transaction, categoryName string) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	row := []any{
		t.ID,
		t.OccurredOn.Format("2006-01-02"),
		string(t.Type),
		t.Merchant,
		t.Description,
		categoryName,
		t.Amount.Amount(),
	}

	rng := fmt.Sprintf("%s!A:G", c.sheetName)
	vr := &gsheet.ValueRange{Values: [][]any{row}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Appended ledger row",
		log.FieldTxID, t.ID,
		log.FieldSheetsRef, ref)
	return ref, nil
}

// Remove blanks the row whose first column holds the transaction id. Row
// deletion would shift references already handed out, so the row is cleared
// instead.
func (c *Client) Remove(ctx context.Context, transactionID string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read id column: %w", err)
	}

	rowIndex := -1
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if id, ok := row[0].(string); ok && id == transactionID {
			rowIndex = i + 1
			break
		}
	}
	if rowIndex < 0 {
		// Never mirrored or already removed.
		c.logger.WarnContext(ctx, "Ledger row not found in sheet",
			log.FieldTxID, transactionID)
		return nil
	}

	clearRange := fmt.Sprintf("%s!A%d:G%d", c.sheetName, rowIndex, rowIndex)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear row %s: %w", clearRange, err)
	}

	c.logger.DebugContext(ctx, "Cleared ledger row",
		log.FieldTxID, transactionID,
		log.FieldSheetsRef, clearRange)
	return nil
}
