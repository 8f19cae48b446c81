package snapshot

import (
	"fmt"
	"strings"
)

// MissingDeletePathsError is raised when failMissingDeletePaths is set and
// at least one explicit delete path matched nothing in the base snapshot
// (spec.md §7).
type MissingDeletePathsError struct {
	Paths []string
}

func (e *MissingDeletePathsError) Error() string {
	return fmt.Sprintf("delete paths matched no file: %s", strings.Join(e.Paths, ", "))
}
