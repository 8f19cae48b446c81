package manifest

import (
	"fmt"
	"strings"
)

// Transform maps a source column's values onto a partition value.
// Implementers must be pure and deterministic.
type Transform interface {
	// Name identifies the transform ("identity", "bucket[N]", "truncate[N]").
	Name() string
	// Apply projects a raw column value to its partition value.
	Apply(value interface{}) interface{}
	// PreservesOrder reports whether a < b (on the source column) implies
	// Apply(a) <= Apply(b). Range predicates (<, <=, >, >=) can only be
	// projected through an order-preserving transform.
	PreservesOrder() bool
}

// IdentityTransform passes the source column through unchanged.
type IdentityTransform struct{}

func (IdentityTransform) Name() string                   { return "identity" }
func (IdentityTransform) Apply(v interface{}) interface{} { return v }
func (IdentityTransform) PreservesOrder() bool            { return true }

// BucketTransform hashes the source column into N buckets. It is not
// order-preserving: only equality predicates can be projected through it.
type BucketTransform struct {
	N int
}

func (b BucketTransform) Name() string { return fmt.Sprintf("bucket[%d]", b.N) }

func (b BucketTransform) Apply(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	h := hashValue(v)
	bucket := int32(h) % int32(b.N)
	if bucket < 0 {
		bucket += int32(b.N)
	}
	return bucket
}

func (BucketTransform) PreservesOrder() bool { return false }

func hashValue(v interface{}) uint32 {
	s := fmt.Sprint(v)
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// TruncateTransform truncates a string (or string-rendered) column value to
// its first Width bytes. It preserves ordering on the truncated prefix.
type TruncateTransform struct {
	Width int
}

func (t TruncateTransform) Name() string { return fmt.Sprintf("truncate[%d]", t.Width) }

func (t TruncateTransform) Apply(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if len(s) <= t.Width {
		return s
	}
	return s[:t.Width]
}

func (TruncateTransform) PreservesOrder() bool { return true }

// Field is one column of a PartitionSpec: the source table column it
// derives from, the transform applied to it, and the partition column name.
type Field struct {
	SourceColumn string
	Transform    Transform
	Name         string
}

// PartitionSpec is the immutable mapping from data columns to partition
// columns. Two specs are compatible for merge purposes iff their SpecID is
// equal; this package never structurally compares fields across specs.
type PartitionSpec struct {
	SpecID int32
	Fields []Field
}

// FieldByName returns the spec field with the given partition column name.
func (s *PartitionSpec) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Partition is a tuple of typed values, one per field of some PartitionSpec,
// in field order.
type Partition []interface{}

// Key returns a canonical, hashable representation of this tuple, suitable
// for use as a map key in the dropPartitions set and similar constructs.
// Equal tuples (by value, per field) always produce equal keys.
func (p Partition) Key() string {
	var b strings.Builder
	for i, v := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		fmt.Fprintf(&b, "%v", v)
	}
	return b.String()
}
