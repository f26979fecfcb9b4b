package restore

import "slices"

// BuildLatest folds records into a map holding the most recent record per
// key. Records are visited in input order. A record replaces the current
// entry for its key only if its timestamp is strictly later, so exact ties
// and invalid timestamps keep the record seen first.
func BuildLatest[R any](records []R, keyOf func(R) string, timeOf func(R) Timestamp) map[string]R {
	index := make(map[string]R, len(records))
	for _, record := range records {
		key := keyOf(record)
		current, ok := index[key]
		if !ok || timeOf(record).After(timeOf(current)) {
			index[key] = record
		}
	}
	return index
}

// LatestBySnapshot maps each snapshot name to its most recent restore.
// Nil records are skipped.
func LatestBySnapshot(records []*Record) map[string]*Record {
	if slices.Contains(records, nil) {
		records = withoutNil(slices.Clone(records))
	}
	return BuildLatest(records, SnapshotName, RestoreTime)
}
