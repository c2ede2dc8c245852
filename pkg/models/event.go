package models

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// EventKind is a bitmask of filesystem change categories. The numeric values
// are part of the template contract: $nflags renders the decimal value of the
// event's kind set, so these constants are stable and must never be reordered.
type EventKind uint32

const (
	// KindAccess indicates a file was accessed (read)
	KindAccess EventKind = 1 << iota

	// KindAttrib indicates metadata changed (permissions, timestamps)
	KindAttrib

	// KindWriteClose indicates a file opened for writing was closed
	KindWriteClose

	// KindNowriteClose indicates a file opened read-only was closed
	KindNowriteClose

	// KindCreate indicates a file or directory was created
	KindCreate

	// KindDelete indicates an entry was deleted from a watched directory
	KindDelete

	// KindSelfDelete indicates the watched directory itself was deleted
	KindSelfDelete

	// KindModify indicates a file was modified
	KindModify

	// KindSelfMove indicates the watched directory itself was moved
	KindSelfMove

	// KindMoveFrom indicates an entry was moved out of a watched directory
	KindMoveFrom

	// KindMoveTo indicates an entry was moved into a watched directory
	KindMoveTo

	// KindOpen indicates a file was opened
	KindOpen
)

// KindAll is the expansion of the "all" mask alias.
const KindAll = KindAccess | KindAttrib | KindWriteClose | KindNowriteClose |
	KindCreate | KindDelete | KindSelfDelete | KindModify | KindSelfMove |
	KindMoveFrom | KindMoveTo | KindOpen

// KindMove and KindClose are the expansions of the "move" and "close" aliases.
const (
	KindMove  = KindMoveFrom | KindMoveTo
	KindClose = KindWriteClose | KindNowriteClose
)

// kindNames maps each single kind bit to its symbolic configuration name.
var kindNames = map[EventKind]string{
	KindAccess:       "access",
	KindAttrib:       "attribute_change",
	KindWriteClose:   "write_close",
	KindNowriteClose: "nowrite_close",
	KindCreate:       "create",
	KindDelete:       "delete",
	KindSelfDelete:   "self_delete",
	KindModify:       "modify",
	KindSelfMove:     "self_move",
	KindMoveFrom:     "move_from",
	KindMoveTo:       "move_to",
	KindOpen:         "open",
}

// kindAliases are the composite mask names expanded at configuration load.
var kindAliases = map[string]EventKind{
	"all":   KindAll,
	"move":  KindMove,
	"close": KindClose,
}

// ParseEventKind resolves a single symbolic event name or alias to its mask.
// The boolean reports whether the name was recognized.
func ParseEventKind(name string) (EventKind, bool) {
	name = strings.TrimSpace(name)
	for kind, n := range kindNames {
		if n == name {
			return kind, true
		}
	}
	if kind, ok := kindAliases[name]; ok {
		return kind, true
	}
	return 0, false
}

// Has reports whether any bit of other is present in k.
func (k EventKind) Has(other EventKind) bool {
	return k&other != 0
}

// Names returns the symbolic names of all kinds present in k, in ascending
// bit order. This is the $tflags rendering.
func (k EventKind) Names() []string {
	names := make([]string, 0, 4)
	for bit := KindAccess; bit <= KindOpen; bit <<= 1 {
		if k&bit != 0 {
			names = append(names, kindNames[bit])
		}
	}
	return names
}

// String renders the kind set as a comma-joined list of symbolic names.
func (k EventKind) String() string {
	return strings.Join(k.Names(), ",")
}

// Numeric renders the kind set as its decimal bitmask value, the $nflags form.
func (k EventKind) Numeric() string {
	return strconv.FormatUint(uint64(k), 10)
}

// KindNames returns every valid symbolic event name, sorted, for diagnostics.
func KindNames() []string {
	names := make([]string, 0, len(kindNames)+len(kindAliases))
	for _, n := range kindNames {
		names = append(names, n)
	}
	for n := range kindAliases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RawEvent is one filesystem change notification as delivered by an event
// source. It is consumed exactly once by the dispatcher and never persisted.
type RawEvent struct {
	// WatchPath is the absolute watched directory the event fired in.
	WatchPath string

	// Name is the changed entry's base name, empty for self events.
	Name string

	// Kinds is the set of change categories reported for this event.
	Kinds EventKind

	// Cookie correlates a move_from with its move_to, 0 when unknown.
	Cookie uint32

	// IsDir reports whether the changed entry is a directory, when the
	// source could determine it.
	IsDir bool
}

// Path returns the absolute path of the changed entry.
func (e RawEvent) Path() string {
	if e.Name == "" {
		return e.WatchPath
	}
	return filepath.Join(e.WatchPath, e.Name)
}

// IsStructural reports whether the event can change the shape of a watched
// directory tree and therefore must reach the watch tree manager even when a
// job's filter would reject it. Deletions cannot be stat'ed, so the tree
// manager makes the final directory determination itself.
func (e RawEvent) IsStructural() bool {
	return e.Kinds.Has(KindCreate | KindDelete | KindSelfDelete | KindMoveFrom | KindMoveTo | KindSelfMove)
}
