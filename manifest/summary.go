package manifest

import "strconv"

// Summarize aggregates the per-manifest Counts across manifests into the
// keys a materialized Snapshot reports. A manifest with a nil Counts (the
// filter fast path that passed a manifest through unread) contributes
// nothing to the totals but is still counted toward total-manifests.
func Summarize(manifests []*File) map[string]string {
	var added, existing, deleted uint64
	for _, mf := range manifests {
		if mf.Counts == nil {
			continue
		}
		added += uint64(mf.Counts.AddedFilesCount)
		existing += uint64(mf.Counts.ExistingFilesCount)
		deleted += uint64(mf.Counts.DeletedFilesCount)
	}
	return map[string]string{
		"added-data-files":    strconv.FormatUint(added, 10),
		"existing-data-files": strconv.FormatUint(existing, 10),
		"deleted-data-files":  strconv.FormatUint(deleted, 10),
		"total-data-files":    strconv.FormatUint(added+existing, 10),
		"total-manifests":     strconv.Itoa(len(manifests)),
	}
}
