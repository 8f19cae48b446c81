package predicate

import "github.com/tableformat/snapshotmerge/manifest"

// PartitionPredicate is a partition-level predicate derived from a row
// Expression by Projector. Evaluating it only requires a partition tuple,
// never the underlying rows.
type PartitionPredicate func(p manifest.Partition) bool

func ppAlwaysTrue(manifest.Partition) bool  { return true }
func ppAlwaysFalse(manifest.Partition) bool { return false }

func ppAnd(a, b PartitionPredicate) PartitionPredicate {
	return func(p manifest.Partition) bool { return a(p) && b(p) }
}

func ppOr(a, b PartitionPredicate) PartitionPredicate {
	return func(p manifest.Partition) bool { return a(p) || b(p) }
}

func ppNot(a PartitionPredicate) PartitionPredicate {
	return func(p manifest.Partition) bool { return !a(p) }
}

// compare orders two comparable literals, returning <0, 0, >0. Mixed or
// unsupported types compare as unordered (0, false).
func compare(a, b interface{}) (int, bool) {
	switch av := a.(type) {
	case int:
		bv, ok := toInt64(b)
		if !ok {
			return 0, false
		}
		return cmpInt64(int64(av), bv), true
	case int32:
		bv, ok := toInt64(b)
		if !ok {
			return 0, false
		}
		return cmpInt64(int64(av), bv), true
	case int64:
		bv, ok := toInt64(b)
		if !ok {
			return 0, false
		}
		return cmpInt64(av, bv), true
	case uint64:
		bv, ok := toInt64(b)
		if !ok {
			return 0, false
		}
		return cmpInt64(int64(av), bv), true
	case float64:
		bv, ok := toFloat64(b)
		if !ok {
			return 0, false
		}
		return cmpFloat64(av, bv), true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	default:
		return 0, false
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func equalValues(a, b interface{}) bool {
	c, ok := compare(a, b)
	return ok && c == 0
}
