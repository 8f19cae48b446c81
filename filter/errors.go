package filter

import "fmt"

// CannotDeletePartialError is raised when a file's partition satisfies the
// inclusive but not the strict delete predicate, and its column metrics
// cannot prove every row in the file matches (spec.md §7).
type CannotDeletePartialError struct {
	Path string
}

func (e *CannotDeletePartialError) Error() string {
	return fmt.Sprintf("cannot delete file %s: partition matches some but not all rows, and metrics cannot prove a full match", e.Path)
}

// DeleteForbiddenError is raised when at least one file would be deleted
// while failAnyDelete is set (spec.md §7).
type DeleteForbiddenError struct {
	PartitionPath string
}

func (e *DeleteForbiddenError) Error() string {
	return fmt.Sprintf("deleting files from partition %s is forbidden by this update", e.PartitionPath)
}
