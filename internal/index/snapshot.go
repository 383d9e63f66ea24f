package index

import (
	"sort"
	"time"

	"github.com/sha1n/mcp-acmt-server/internal/domain"
)

// FileState is the part of a command's metadata that signals a content change.
type FileState struct {
	Size    int64
	ModTime time.Time
}

// Snapshot maps command names to the state they were indexed at.
type Snapshot map[string]FileState

// NewSnapshot records the state of each listed command.
func NewSnapshot(cmds []domain.CommandMetadata) Snapshot {
	s := make(Snapshot, len(cmds))
	for _, c := range cmds {
		s[c.Name] = FileState{Size: c.Size, ModTime: c.LastModified}
	}
	return s
}

// Diff returns the commands in next that are new or changed since s, and the
// commands in s that are gone from next. Both lists are sorted.
func (s Snapshot) Diff(next Snapshot) (changed, removed []string) {
	for name, state := range next {
		prev, ok := s[name]
		if !ok || prev.Size != state.Size || !prev.ModTime.Equal(state.ModTime) {
			changed = append(changed, name)
		}
	}
	for name := range s {
		if _, ok := next[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(changed)
	sort.Strings(removed)
	return changed, removed
}
