package snapshot

import (
	"errors"

	"github.com/tableformat/snapshotmerge/internal/metrics"
	"github.com/tableformat/snapshotmerge/iofs"
	"github.com/tableformat/snapshotmerge/manifest"
)

func (u *Update) deleteOrphan(path string) {
	if err := u.io.DeleteFile(path); err != nil {
		var notFound iofs.PathNotFoundError
		if !errors.As(err, &notFound) {
			u.logger.WithError(err).Warn("deleting orphaned manifest file")
		}
		return
	}
	metrics.OrphansCleaned.Inc()
}

// cleanFilteredManifests drops every filteredManifests entry. Where an
// entry's output differs from its input, it also deletes the output file
// unless that file made it into committedSet. It underlies both Apply's step 1 (filterUpdated, called
// with an empty set) and CleanUncommitted's third rule (spec.md §4.F,
// §4.G).
func (u *Update) cleanFilteredManifests(committedSet map[string]struct{}) {
	u.filteredManifests.Range(func(k, v interface{}) bool {
		key := k.(string)
		out := v.(*manifest.File)
		if out.Key() != key {
			if _, ok := committedSet[out.Path]; !ok {
				u.deleteOrphan(out.Path)
			}
			u.filteredManifestToDeletedFiles.Delete(out.Key())
		}
		u.filteredManifests.Delete(k)
		return true
	})
}

// CleanUncommitted deletes every output file this Update produced that
// did not make it into committedSet, and clears the corresponding cache
// entries. It is safe to call after any terminal outcome — success,
// validation failure, or a final abandoned retry (spec.md §4.G).
//
// committedSet is keyed by manifest path.
func (u *Update) CleanUncommitted(committedSet map[string]struct{}) {
	if u.newManifest != nil {
		if _, ok := committedSet[u.newManifest.Path]; !ok {
			u.deleteOrphan(u.newManifest.Path)
		}
		u.newManifest = nil
	}

	u.mergeManifests.Range(func(k, v interface{}) bool {
		out := v.(*manifest.File)
		if _, ok := committedSet[out.Path]; !ok {
			u.deleteOrphan(out.Path)
		}
		u.mergeManifests.Delete(k)
		return true
	})

	u.cleanFilteredManifests(committedSet)
}
