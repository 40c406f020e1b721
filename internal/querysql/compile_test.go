package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cadence/internal/queryir"
)

var testSchema = queryir.Schema{
	"events": {"id", "kind", "start_at", "clinician_id", "location_id", "parent_id"},
}

func TestCompile_SimpleSelect(t *testing.T) {
	compiler := NewSQLCompiler(Question, testSchema)

	sql, params, err := compiler.Compile(queryir.Select{
		From:    "events",
		Columns: []string{"id", "start_at"},
		Filter:  queryir.Equals{Field: "kind", Value: "APPOINTMENT"},
		OrderBy: []string{"start_at"},
	})
	require.NoError(t, err)

	assert.Equal(t, "SELECT id, start_at FROM events WHERE kind = ? ORDER BY start_at ASC, id ASC", sql)
	assert.NotContains(t, sql, "APPOINTMENT", "values are never interpolated")
	assert.Equal(t, []any{"APPOINTMENT"}, params)
}

func TestCompile_OrderByMandatory(t *testing.T) {
	compiler := NewSQLCompiler(Question, testSchema)

	sql, _, err := compiler.Compile(&queryir.Select{
		From:    "events",
		Columns: []string{"id"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM events ORDER BY id ASC", sql)

	sql, _, err = compiler.Compile(queryir.Select{
		From:    "events",
		Columns: []string{"id"},
		OrderBy: []string{"id", "start_at"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM events ORDER BY id ASC, start_at ASC", sql, "id is not repeated")
}

func TestCompile_RangeAndNull(t *testing.T) {
	compiler := NewSQLCompiler(Question, testSchema)

	sql, params, err := compiler.Compile(queryir.Select{
		From:    "events",
		Columns: []string{"id"},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Range{Field: "start_at", From: queryir.Bound(100), To: queryir.Bound(200)},
			queryir.IsNull{Field: "parent_id"},
			queryir.IsNull{Field: "location_id", Not: true},
			queryir.Equals{Field: "clinician_id", Value: int64(7)},
		}},
		OrderBy: []string{"start_at"},
	})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id FROM events WHERE start_at >= ? AND start_at < ? AND parent_id IS NULL AND location_id IS NOT NULL AND clinician_id = ? ORDER BY start_at ASC, id ASC",
		sql)
	assert.Equal(t, []any{int64(100), int64(200), int64(7)}, params)
}

func TestCompile_OpenRange(t *testing.T) {
	compiler := NewSQLCompiler(Question, testSchema)

	sql, params, err := compiler.Compile(queryir.Select{
		From:    "events",
		Columns: []string{"id"},
		Filter:  queryir.Range{Field: "start_at", From: queryir.Bound(5)},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE start_at >= ? ORDER BY")
	assert.Equal(t, []any{int64(5)}, params)
}

func TestCompile_EmptyAnd(t *testing.T) {
	compiler := NewSQLCompiler(Question, testSchema)

	sql, params, err := compiler.Compile(queryir.Select{
		From:    "events",
		Columns: []string{"id"},
		Filter:  queryir.And{},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE 1 = 1")
	assert.Empty(t, params)
}

func TestCompile_DollarPlaceholdersAndLocking(t *testing.T) {
	compiler := NewSQLCompiler(Dollar, testSchema)

	sql, params, err := compiler.Compile(queryir.Select{
		From:    "events",
		Columns: []string{"id"},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "parent_id", Value: int64(1)},
			queryir.Range{Field: "start_at", From: queryir.Bound(10), To: queryir.Bound(20)},
		}},
		OrderBy:   []string{"start_at"},
		Limit:     5,
		ForUpdate: true,
	})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id FROM events WHERE parent_id = $1 AND start_at >= $2 AND start_at < $3 ORDER BY start_at ASC, id ASC LIMIT 5 FOR UPDATE",
		sql)
	assert.Len(t, params, 3)
}

func TestCompile_ForUpdateIgnoredOnSQLite(t *testing.T) {
	compiler := NewSQLCompiler(Question, testSchema)

	sql, _, err := compiler.Compile(queryir.Select{
		From:      "events",
		Columns:   []string{"id"},
		ForUpdate: true,
	})
	require.NoError(t, err)
	assert.NotContains(t, sql, "FOR UPDATE")
}

func TestCompile_InvalidQueries(t *testing.T) {
	compiler := NewSQLCompiler(Question, testSchema)

	tests := []struct {
		name  string
		query queryir.Query
		want  string
	}{
		{"nil query", nil, "nil query"},
		{"unknown table", queryir.Select{From: "users", Columns: []string{"id"}}, `unknown table "users"`},
		{"no columns", queryir.Select{From: "events"}, "explicit columns are required"},
		{"unknown column", queryir.Select{From: "events", Columns: []string{"password"}}, `unknown column "password"`},
		{"unknown order column", queryir.Select{From: "events", Columns: []string{"id"}, OrderBy: []string{"1; DROP TABLE events"}}, "unknown column"},
		{"float value", queryir.Select{
			From: "events", Columns: []string{"id"},
			Filter: queryir.Equals{Field: "clinician_id", Value: 7.5},
		}, "float"},
		{"null value", queryir.Select{
			From: "events", Columns: []string{"id"},
			Filter: queryir.Equals{Field: "parent_id", Value: nil},
		}, "IsNull"},
		{"unbounded range", queryir.Select{
			From: "events", Columns: []string{"id"},
			Filter: queryir.Range{Field: "start_at"},
		}, "no bounds"},
		{"inverted range", queryir.Select{
			From: "events", Columns: []string{"id"},
			Filter: queryir.Range{Field: "start_at", From: queryir.Bound(10), To: queryir.Bound(5)},
		}, "ends before it starts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := compiler.Compile(tt.query)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "a = ? AND b = ?", Rebind(Question, "a = ? AND b = ?"))
	assert.Equal(t, "a = $1 AND b = $2", Rebind(Dollar, "a = ? AND b = ?"))
	assert.Equal(t, "SELECT 1", Rebind(Dollar, "SELECT 1"))
}
