package predicate

import (
	"sync"

	"github.com/tableformat/snapshotmerge/manifest"
)

// Projector projects one fixed row Expression into the inclusive and strict
// partition predicates of any PartitionSpec, caching both per spec id since
// a single update's delete expression is evaluated against every manifest
// in the base snapshot (spec.md §4.A, §9).
type Projector struct {
	expr  Expression
	cache sync.Map // specID int32 -> *projection
}

type projection struct {
	inclusive PartitionPredicate
	strict    PartitionPredicate
}

// NewProjector binds a Projector to a fixed row predicate.
func NewProjector(expr Expression) *Projector {
	return &Projector{expr: expr}
}

func (p *Projector) project(spec *manifest.PartitionSpec) *projection {
	if cached, ok := p.cache.Load(spec.SpecID); ok {
		return cached.(*projection)
	}
	proj := &projection{
		inclusive: projectInclusive(p.expr, spec),
		strict:    projectStrict(p.expr, spec),
	}
	actual, _ := p.cache.LoadOrStore(spec.SpecID, proj)
	return actual.(*projection)
}

// Inclusive returns the over-approximating partition predicate: true for a
// partition tuple iff some row with that partition could satisfy expr.
func (p *Projector) Inclusive(spec *manifest.PartitionSpec) PartitionPredicate {
	return p.project(spec).inclusive
}

// Strict returns the under-approximating partition predicate: true iff
// every row with that partition satisfies expr. Strict(p,s) ⇒ Inclusive(p,s)
// for every projector produced by this package.
func (p *Projector) Strict(spec *manifest.PartitionSpec) PartitionPredicate {
	return p.project(spec).strict
}

func projectInclusive(expr Expression, spec *manifest.PartitionSpec) PartitionPredicate {
	switch e := expr.(type) {
	case alwaysTrue:
		return ppAlwaysTrue
	case alwaysFalse:
		return ppAlwaysFalse
	case *And:
		return ppAnd(projectInclusive(e.Left, spec), projectInclusive(e.Right, spec))
	case *Or:
		return ppOr(projectInclusive(e.Left, spec), projectInclusive(e.Right, spec))
	case *Not:
		// inclusive(not P) = not strict(P): a partition could contain a row
		// satisfying "not P" unless every row is proven to satisfy P.
		return ppNot(projectStrict(e.Expr, spec))
	case *Term:
		return projectTerm(e, spec, false)
	default:
		return ppAlwaysTrue
	}
}

func projectStrict(expr Expression, spec *manifest.PartitionSpec) PartitionPredicate {
	switch e := expr.(type) {
	case alwaysTrue:
		return ppAlwaysTrue
	case alwaysFalse:
		return ppAlwaysFalse
	case *And:
		return ppAnd(projectStrict(e.Left, spec), projectStrict(e.Right, spec))
	case *Or:
		return ppOr(projectStrict(e.Left, spec), projectStrict(e.Right, spec))
	case *Not:
		// strict(not P) = not inclusive(P): every row satisfies "not P" only
		// if no row could possibly satisfy P.
		return ppNot(projectInclusive(e.Expr, spec))
	case *Term:
		return projectTerm(e, spec, true)
	default:
		return ppAlwaysFalse
	}
}

// fieldFor returns the index and Field of the first spec field deriving
// from the term's source column, if any.
func fieldFor(spec *manifest.PartitionSpec, column string) (int, manifest.Field, bool) {
	for i, f := range spec.Fields {
		if f.SourceColumn == column {
			return i, f, true
		}
	}
	return 0, manifest.Field{}, false
}

func projectTerm(t *Term, spec *manifest.PartitionSpec, strict bool) PartitionPredicate {
	idx, field, found := fieldFor(spec, t.Column)
	if !found {
		// The predicate's column isn't part of this spec at all: we can't
		// restrict on it, so inclusive must stay true and strict must stay
		// false (can't be proven for every row from the partition alone).
		if strict {
			return ppAlwaysFalse
		}
		return ppAlwaysTrue
	}

	switch t.Op {
	case OpIsNull:
		return func(p manifest.Partition) bool { return p[idx] == nil }
	case OpNotNull:
		return func(p manifest.Partition) bool { return p[idx] != nil }
	case OpIn:
		var pred PartitionPredicate = ppAlwaysFalse
		for _, v := range t.Values {
			pred = ppOr(pred, projectTerm(&Term{Column: t.Column, Op: OpEq, Value: v}, spec, strict))
		}
		return pred
	case OpEq:
		pv := field.Transform.Apply(t.Value)
		// Every row sharing a partition has the same value for an
		// identity-transformed column, so equality on the partition value
		// is provably exact (strict); for a lossy transform (bucket,
		// truncate) two different raw values can land in the same
		// partition, so equality is only ever an over-approximation.
		_, identity := field.Transform.(manifest.IdentityTransform)
		if strict && !identity {
			return ppAlwaysFalse
		}
		return func(p manifest.Partition) bool { return equalValues(p[idx], pv) }
	case OpNotEq:
		if strict {
			return ppAlwaysFalse
		}
		pv := field.Transform.Apply(t.Value)
		return func(p manifest.Partition) bool { return !equalValues(p[idx], pv) }
	case OpLt, OpLtEq, OpGt, OpGtEq:
		if !field.Transform.PreservesOrder() {
			if strict {
				return ppAlwaysFalse
			}
			return ppAlwaysTrue
		}
		_, identity := field.Transform.(manifest.IdentityTransform)
		if strict && !identity {
			// Truncation loses precision: a partition value that compares
			// true against the truncated literal doesn't guarantee every
			// (untruncated) row in it does too.
			return ppAlwaysFalse
		}
		pv := field.Transform.Apply(t.Value)
		op := t.Op
		return func(p manifest.Partition) bool {
			c, ok := compare(p[idx], pv)
			if !ok {
				return false
			}
			switch op {
			case OpLt:
				return c < 0
			case OpLtEq:
				return c <= 0
			case OpGt:
				return c > 0
			default: // OpGtEq
				return c >= 0
			}
		}
	default:
		if strict {
			return ppAlwaysFalse
		}
		return ppAlwaysTrue
	}
}
