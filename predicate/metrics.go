package predicate

import "github.com/tableformat/snapshotmerge/manifest"

// StrictMetricsEvaluator proves, from a DataFile's per-column stats alone
// (without reading a single row), that every row in the file satisfies a
// fixed row Expression. It is the fallback ManifestFilter consults when a
// file's partition satisfies the inclusive but not the strict projection
// (spec.md §4.B step 3, §7 CannotDeletePartial).
type StrictMetricsEvaluator struct {
	expr Expression
}

// NewStrictMetricsEvaluator binds the evaluator to the update's delete
// expression.
func NewStrictMetricsEvaluator(expr Expression) *StrictMetricsEvaluator {
	return &StrictMetricsEvaluator{expr: expr}
}

// Evaluate reports whether the file's column stats prove every row matches.
// A false result is always safe (it just means the filter must fall back
// to the partition-level verdict); it never means "no row matches".
func (e *StrictMetricsEvaluator) Evaluate(file *manifest.DataFile) bool {
	return evalStrict(e.expr, file)
}

func evalStrict(expr Expression, file *manifest.DataFile) bool {
	switch e := expr.(type) {
	case alwaysTrue:
		return true
	case alwaysFalse:
		return false
	case *And:
		return evalStrict(e.Left, file) && evalStrict(e.Right, file)
	case *Or:
		return evalStrict(e.Left, file) || evalStrict(e.Right, file)
	case *Not:
		// Proving a negation from aggregate stats alone isn't generally
		// possible; stay conservative.
		return false
	case *Term:
		return evalStrictTerm(e, file)
	default:
		return false
	}
}

func evalStrictTerm(t *Term, file *manifest.DataFile) bool {
	stats, ok := file.ColumnStats[t.Column]
	if !ok {
		return false
	}
	switch t.Op {
	case OpLt:
		c, ok := compare(stats.Max, t.Value)
		return ok && c < 0 && stats.NullCount == 0
	case OpLtEq:
		c, ok := compare(stats.Max, t.Value)
		return ok && c <= 0 && stats.NullCount == 0
	case OpGt:
		c, ok := compare(stats.Min, t.Value)
		return ok && c > 0 && stats.NullCount == 0
	case OpGtEq:
		c, ok := compare(stats.Min, t.Value)
		return ok && c >= 0 && stats.NullCount == 0
	case OpEq:
		if stats.NullCount != 0 {
			return false
		}
		cMin, ok := compare(stats.Min, stats.Max)
		if !ok || cMin != 0 {
			return false
		}
		c, ok := compare(stats.Min, t.Value)
		return ok && c == 0
	case OpIsNull:
		return stats.ValueCount == 0
	case OpNotNull:
		return stats.NullCount == 0
	default:
		return false
	}
}
