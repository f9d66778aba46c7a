// This file holds the column encoders shared by the table accessors.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mesh-intelligence/liftsync/pkg/types"
)

// timeLayout is fixed width so that text comparison orders timestamps.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by hand or by older tools may carry plain RFC 3339.
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func formatOptTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseOptTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func optString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func optInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// orderClause maps an Order to SQL for tables that carry the column. Ties
// always fall back to row_id so that results are deterministic.
func orderClause(o types.Order, allowed ...types.Order) (string, error) {
	if o == types.OrderDefault {
		return " ORDER BY row_id ASC", nil
	}
	permitted := false
	for _, a := range allowed {
		if a == o {
			permitted = true
			break
		}
	}
	if !permitted {
		return "", fmt.Errorf("unsupported order %d: %w", o, types.ErrInvalidData)
	}
	switch o {
	case types.OrderCreatedAsc:
		return " ORDER BY created_at ASC, row_id ASC", nil
	case types.OrderCreatedDesc:
		return " ORDER BY created_at DESC, row_id DESC", nil
	case types.OrderStartDesc:
		return " ORDER BY start_time DESC, row_id DESC", nil
	case types.OrderNameAsc:
		return " ORDER BY name ASC, row_id ASC", nil
	case types.OrderSetNumberAsc:
		return " ORDER BY set_number ASC, row_id ASC", nil
	}
	return "", fmt.Errorf("unsupported order %d: %w", o, types.ErrInvalidData)
}

// where accumulates filter predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	s := " WHERE " + w.clauses[0]
	for _, c := range w.clauses[1:] {
		s += " AND " + c
	}
	return s
}

func limitClause(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", n)
}
