package vtrie

import (
	"errors"
	"fmt"
)

// Callers are expected to branch on these values with errors.Is; none of
// them is ever logged or swallowed inside the package.
var (
	// ErrSnapshotClosed is returned by every operation attempted on a
	// snapshot after Close has succeeded.
	ErrSnapshotClosed = errors.New("snapshot already closed")

	// ErrSnapshotReadersNotClosed is returned by Snapshot.Close while the
	// snapshot still has active readers. Close the readers first, then retry.
	ErrSnapshotReadersNotClosed = errors.New("snapshot has active readers")

	// ErrKeyNotFound is returned by Get when no write to the key with a
	// commit timestamp ≤ the requested one is reachable from the root.
	ErrKeyNotFound = errors.New("key not found")

	// ErrReaderNotFound is returned by CloseReader for an id that was never
	// issued or has already been closed.
	ErrReaderNotFound = errors.New("reader not found")

	// ErrSnapshotNotFound is returned by Tree.CloseSnapshot for an id that
	// is not currently registered as open.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrStaleTimestamp is returned by Tree.InsertAt when the supplied
	// commit timestamp does not advance the tree's timeline.
	ErrStaleTimestamp = errors.New("timestamp does not advance the timeline")
)

// DocError wraps a msgpack encoding or decoding failure in the typed
// document layer, identifying the key the failure occurred on.
type DocError struct {
	Key string
	Err error
}

func docErrf(key string, err error, format string, args ...any) error {
	return &DocError{key, fmt.Errorf(format+": %w", append(args, err)...)}
}

func (e *DocError) Unwrap() error {
	return e.Err
}

func (e *DocError) Error() string {
	return fmt.Sprintf("doc %q: %v", e.Key, e.Err)
}
