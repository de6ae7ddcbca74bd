package usage

import (
	"strconv"
	"strings"
	"time"
)

// sqliteTimeLayout sorts lexically in timestamp order and is understood by
// SQLite's DATE().
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

// dialect captures the differences between the SQL backends.
type dialect struct {
	placeholder func(n int) string
	day         string
	timeArg     func(time.Time) any
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	day:         "DATE(recorded_at)",
	timeArg:     func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	day:         "to_char(recorded_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')",
	timeArg:     func(t time.Time) any { return t.UTC() },
}

// query assembles a statement and its arguments for one dialect.
type query struct {
	d    dialect
	sb   strings.Builder
	args []any
}

func newQuery(d dialect, base string) *query {
	q := &query{d: d}
	q.sb.WriteString(base)
	return q
}

func (q *query) raw(s string) *query {
	q.sb.WriteString(s)
	return q
}

// and appends " AND <col> <op> <placeholder>".
func (q *query) and(col, op string, arg any) *query {
	q.args = append(q.args, arg)
	q.sb.WriteString(" AND ")
	q.sb.WriteString(col)
	q.sb.WriteString(" ")
	q.sb.WriteString(op)
	q.sb.WriteString(" ")
	q.sb.WriteString(q.d.placeholder(len(q.args)))
	return q
}

func (q *query) within(r Range) *query {
	if !r.From.IsZero() {
		q.and("recorded_at", ">=", q.d.timeArg(r.From))
	}
	if !r.To.IsZero() {
		q.and("recorded_at", "<=", q.d.timeArg(r.To))
	}
	return q
}

func (q *query) department(dept string) *query {
	if dept != "" {
		q.and("department", "=", dept)
	}
	return q
}

func (q *query) String() string { return q.sb.String() }

func summaryQuery(d dialect, dim Dimension, dept string, r Range) *query {
	col := dim.column()
	q := newQuery(d, `SELECT `+col+`,
		COALESCE(SUM(cost), 0),
		COUNT(*),
		CAST(COALESCE(SUM(input_tokens), 0) AS BIGINT),
		CAST(COALESCE(SUM(output_tokens), 0) AS BIGINT),
		COALESCE(SUM(latency_ms), 0)
	FROM usage_records
	WHERE 1=1`)
	q.department(dept).within(r)
	q.raw(" GROUP BY " + col + " ORDER BY 2 DESC, " + col)
	return q
}

func dailyQuery(d dialect, since time.Time, dept string) *query {
	q := newQuery(d, `SELECT `+d.day+`, COALESCE(SUM(cost), 0), COUNT(*)
	FROM usage_records
	WHERE 1=1`)
	q.and("recorded_at", ">=", d.timeArg(since)).department(dept)
	q.raw(" GROUP BY 1 ORDER BY 1")
	return q
}

func totalQuery(d dialect, dept string, r Range) *query {
	q := newQuery(d, `SELECT COALESCE(SUM(cost), 0) FROM usage_records WHERE 1=1`)
	return q.department(dept).within(r)
}

func insertStatement(d dialect) string {
	ph := make([]string, 8)
	for i := range ph {
		ph[i] = d.placeholder(i + 1)
	}
	return `INSERT INTO usage_records
		(recorded_at, model, department, project_id, input_tokens, output_tokens, cost, latency_ms)
		VALUES (` + strings.Join(ph, ", ") + `)`
}

func insertArgs(d dialect, r Record) []any {
	return []any{
		d.timeArg(r.Timestamp), r.Model, r.Department, r.ProjectID,
		r.InputTokens, r.OutputTokens, r.Cost, r.LatencyMs,
	}
}
