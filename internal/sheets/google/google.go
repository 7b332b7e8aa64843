// Package google mirrors the expense collection to a Google Sheets tab.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"budget/internal/core"
	"budget/internal/log"
	ports "budget/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config selects the spreadsheet and credentials.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *slog.Logger

	// mu serializes writes: row lookups and row edits must not interleave.
	mu      sync.Mutex
	sheetID *int64
}

var _ ports.Mirror = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = slog.Default()
	}
	creds, err := credentialsJSON(cfg.ServiceAccountJSON, cfg.ServiceAccountFile)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	c := &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		logger:        logger.With(log.FieldComponent, log.ComponentSheets),
	}
	c.logger.InfoContext(ctx, "Google Sheets mirror ready", "sheet", c.sheetName)
	return c, nil
}

func (c *Client) idColumn(ctx context.Context) ([][]any, error) {
	rng := a1(c.sheetName, "A:A")
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (c *Client) Upsert(ctx context.Context, e core.Expense) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.idColumn(ctx)
	if err != nil {
		return err
	}
	row := findRow(ids, e.ID)
	if row == 0 {
		row = len(ids) + 1
		if row == 1 {
			if err := c.write(ctx, rowRange(c.sheetName, 1), [][]any{header}); err != nil {
				return err
			}
			row = 2
		}
	}
	if err := c.write(ctx, rowRange(c.sheetName, row), [][]any{expenseRow(e)}); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "Mirrored expense row", log.FieldExpenseID, e.ID, "row", row)
	return nil
}

func (c *Client) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.idColumn(ctx)
	if err != nil {
		return err
	}
	row := findRow(ids, id)
	if row <= 1 {
		return nil
	}
	sheetID, err := c.lookupSheetID(ctx)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		DeleteDimension: &gsheet.DeleteDimensionRequest{Range: &gsheet.DimensionRange{
			SheetId:    sheetID,
			Dimension:  "ROWS",
			StartIndex: int64(row - 1),
			EndIndex:   int64(row),
		}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d: %w", row, err)
	}
	c.logger.DebugContext(ctx, "Removed expense row", log.FieldExpenseID, id, "row", row)
	return nil
}

func (c *Client) Replace(ctx context.Context, records []core.Expense) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rng := a1(c.sheetName, "A:"+lastColumn)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	values := make([][]any, 0, len(records)+1)
	values = append(values, header)
	for _, e := range records {
		values = append(values, expenseRow(e))
	}
	if err := c.write(ctx, a1(c.sheetName, "A1"), values); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Rewrote expense mirror", log.FieldRecords, len(records))
	return nil
}

// write stores values verbatim; RAW keeps user text from being read as formulas.
func (c *Client) write(ctx context.Context, rng string, values [][]any) error {
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", rng, err)
	}
	return nil
}

func (c *Client) lookupSheetID(ctx context.Context) (int64, error) {
	if c.sheetID != nil {
		return *c.sheetID, nil
	}
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet metadata: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheetName {
			id := sh.Properties.SheetId
			c.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.sheetName)
}
