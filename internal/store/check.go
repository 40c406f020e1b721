package store

import (
	"context"
	"fmt"
)

// Violation is one broken series-graph invariant found by CheckGraph.
type Violation struct {
	EventID int64  `json:"event_id"`
	Problem string `json:"problem"`
}

func (v Violation) String() string {
	return fmt.Sprintf("event %d: %s", v.EventID, v.Problem)
}

// graphChecks are queries returning the ids of events breaking one
// invariant each.
var graphChecks = []struct {
	problem string
	query   string
}{
	{
		"parent is itself an occurrence",
		`SELECT c.id FROM events c JOIN events p ON c.parent_id = p.id WHERE p.parent_id IS NOT NULL`,
	},
	{
		"occurrence carries a recurrence rule",
		`SELECT id FROM events WHERE parent_id IS NOT NULL AND recurrence_rule IS NOT NULL`,
	},
	{
		"occurrence is not marked recurring",
		`SELECT id FROM events WHERE parent_id IS NOT NULL AND is_recurring = ?`,
	},
	{
		"occurrence has no occurrence date",
		`SELECT id FROM events WHERE parent_id IS NOT NULL AND occurrence_date IS NULL`,
	},
	{
		"recurring root has no rule",
		`SELECT id FROM events WHERE parent_id IS NULL AND is_recurring = ? AND recurrence_rule IS NULL`,
	},
	{
		"rule on a non-recurring event",
		`SELECT id FROM events WHERE parent_id IS NULL AND is_recurring = ? AND recurrence_rule IS NOT NULL`,
	},
	{
		"end is not after start",
		`SELECT id FROM events WHERE end_at <= start_at`,
	},
	{
		"series state on a non-root",
		`SELECT s.root_id FROM series_state s JOIN events e ON s.root_id = e.id WHERE e.parent_id IS NOT NULL`,
	},
}

// CheckGraph scans the whole store for series-graph violations. An empty
// result means every occurrence points directly at a recurring root.
func (s *Store) CheckGraph(ctx context.Context) ([]Violation, error) {
	args := [][]any{nil, nil, {false}, nil, {true}, {false}, nil, nil}

	violations := []Violation{}
	for i, check := range graphChecks {
		rows, err := s.db.QueryContext(ctx, s.rebind(check.query+" ORDER BY 1"), args[i]...)
		if err != nil {
			return nil, fmt.Errorf("check graph: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("check graph: %w", err)
			}
			violations = append(violations, Violation{EventID: id, Problem: check.problem})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("check graph: %w", err)
		}
	}
	return violations, nil
}
