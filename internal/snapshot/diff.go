package snapshot

import (
	"sort"
	"time"
)

// Diff compares a previous and a current snapshot and returns the
// detected changes. Events are emitted Added, then Modified, then
// Deleted, each group sorted by path, so the output is reproducible
// regardless of map iteration order. Diff is pure: it performs no I/O
// and never mutates its inputs.
func Diff(prev, curr Snapshot, at time.Time) []ChangeEvent {
	var added, modified, deleted []ChangeEvent

	for path, digest := range curr {
		old, existed := prev[path]
		switch {
		case !existed:
			added = append(added, ChangeEvent{
				Op:        OpAdded,
				Path:      path,
				Time:      at,
				NewDigest: digest,
			})
		case old != digest:
			modified = append(modified, ChangeEvent{
				Op:        OpModified,
				Path:      path,
				Time:      at,
				OldDigest: old,
				NewDigest: digest,
			})
		}
	}

	for path, digest := range prev {
		if _, exists := curr[path]; !exists {
			deleted = append(deleted, ChangeEvent{
				Op:        OpDeleted,
				Path:      path,
				Time:      at,
				OldDigest: digest,
			})
		}
	}

	byPath := func(events []ChangeEvent) {
		sort.Slice(events, func(i, j int) bool {
			return events[i].Path < events[j].Path
		})
	}
	byPath(added)
	byPath(modified)
	byPath(deleted)

	events := make([]ChangeEvent, 0, len(added)+len(modified)+len(deleted))
	events = append(events, added...)
	events = append(events, modified...)
	events = append(events, deleted...)
	return events
}
