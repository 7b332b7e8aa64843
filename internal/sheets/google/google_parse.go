package google

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"budget/internal/core"
)

// header is the first row of the mirror sheet. Column A holds the expense id.
var header = []any{"ID", "Date", "Item", "Amount", "Category", "Owner ID", "Owner", "Created", "Updated"}

const lastColumn = "I"

// expenseRow renders e in header column order. The amount is a number cell so
// the sheet can sum it.
func expenseRow(e core.Expense) []any {
	return []any{
		e.ID,
		e.OccurredOn.String(),
		e.ItemName,
		e.Amount.InexactFloat64(),
		e.Category,
		e.OwnerID,
		e.OwnerDisplayName,
		e.CreatedAt.UTC().Format(time.RFC3339),
		e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// findRow returns the 1-based sheet row whose first column equals id, or 0.
// values is the column A range starting at row 1.
func findRow(values [][]any, id string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}

// a1 quotes a sheet name for A1 notation.
func a1(sheet, rng string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + rng
}

func rowRange(sheet string, row int) string {
	return a1(sheet, fmt.Sprintf("A%d:%s%d", row, lastColumn, row))
}

// credentialsJSON picks inline service account JSON over a key file.
func credentialsJSON(inline, file string) ([]byte, error) {
	inline, file = strings.TrimSpace(inline), strings.TrimSpace(file)
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}
