// Package dump archives the entries visible through a pinned vtrie
// reader into a bbolt file and restores such archives into a fresh
// tree. Archives are a convenience for moving a view between processes;
// the store itself stays purely in-memory and never touches disk.
package dump

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/andreyvit/vtrie"
)

const debugLogArchives = false

const formatVerLatest = 1

var (
	entriesBucket = []byte("entries")
	metaBucket    = []byte("meta")
	metaKey       = []byte("archive")
)

// Meta describes an archive. It is stored msgpack-encoded in a separate
// bucket alongside the entries.
type Meta struct {
	Format    int    `msgpack:"f"`
	ArchiveID string `msgpack:"id"`
	MaxTs     uint64 `msgpack:"ts"`
	Keys      int    `msgpack:"n"`
}

type entry struct {
	Value []byte `msgpack:"v"`
	Ts    uint64 `msgpack:"t"`
}

// CorruptArchiveError reports an archive that cannot be interpreted,
// identifying the offending file.
type CorruptArchiveError struct {
	Path string
	Msg  string
	Err  error
}

func corruptf(path string, err error, format string, args ...any) error {
	return &CorruptArchiveError{path, fmt.Sprintf(format, args...), err}
}

func (e *CorruptArchiveError) Unwrap() error {
	return e.Err
}

func (e *CorruptArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("archive %s: %s: %v", e.Path, e.Msg, e.Err)
	}
	return fmt.Sprintf("archive %s: %s", e.Path, e.Msg)
}

// Write stores every entry the reader can enumerate into a bbolt file at
// path, creating or truncating the buckets it uses. It returns the
// generated archive id. The reader stays usable afterwards.
func Write(path string, r *vtrie.Reader) (uuid.UUID, error) {
	id := uuid.New()

	bdb, err := bbolt.Open(path, 0666, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return uuid.Nil, fmt.Errorf("archive %s: %w", path, err)
	}
	defer bdb.Close()

	err = bdb.Update(func(btx *bbolt.Tx) error {
		for _, name := range [][]byte{entriesBucket, metaBucket} {
			if btx.Bucket(name) != nil {
				if err := btx.DeleteBucket(name); err != nil {
					return err
				}
			}
		}
		entries, err := btx.CreateBucket(entriesBucket)
		if err != nil {
			return err
		}

		var maxTs uint64
		var keys int
		it := r.Iter()
		for it.Next() {
			raw, err := msgpack.Marshal(&entry{Value: it.Value(), Ts: it.Ts()})
			if err != nil {
				return err
			}
			// Put keeps references until commit; the iterator reuses its
			// key buffer, so hand bbolt a copy.
			if err := entries.Put(bytes.Clone(it.Key()), raw); err != nil {
				return err
			}
			maxTs = max(maxTs, it.Ts())
			keys++
			if debugLogArchives {
				slog.LogAttrs(context.Background(), slog.LevelDebug, "archived entry",
					slog.String("key", string(it.Key())), slog.Uint64("ts", it.Ts()))
			}
		}

		meta, err := btx.CreateBucket(metaBucket)
		if err != nil {
			return err
		}
		raw, err := msgpack.Marshal(&Meta{
			Format:    formatVerLatest,
			ArchiveID: id.String(),
			MaxTs:     maxTs,
			Keys:      keys,
		})
		if err != nil {
			return err
		}
		return meta.Put(metaKey, raw)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("archive %s: %w", path, err)
	}
	return id, nil
}

// Read loads the archive at path into a fresh tree, replaying entries in
// commit-timestamp order so their original clocks are preserved.
func Read(path string) (*vtrie.Tree, Meta, error) {
	var meta Meta

	bdb, err := bbolt.Open(path, 0666, &bbolt.Options{Timeout: 10 * time.Second, ReadOnly: true})
	if err != nil {
		return nil, meta, fmt.Errorf("archive %s: %w", path, err)
	}
	defer bdb.Close()

	type rawEntry struct {
		key []byte
		entry
	}
	var loaded []rawEntry

	err = bdb.View(func(btx *bbolt.Tx) error {
		mb := btx.Bucket(metaBucket)
		if mb == nil {
			return corruptf(path, nil, "missing %q bucket", metaBucket)
		}
		raw := mb.Get(metaKey)
		if raw == nil {
			return corruptf(path, nil, "missing %q record", metaKey)
		}
		if err := msgpack.Unmarshal(raw, &meta); err != nil {
			return corruptf(path, err, "decoding meta")
		}
		if meta.Format != formatVerLatest {
			return corruptf(path, nil, "unsupported format version %d", meta.Format)
		}
		if _, err := uuid.Parse(meta.ArchiveID); err != nil {
			return corruptf(path, err, "invalid archive id %q", meta.ArchiveID)
		}

		eb := btx.Bucket(entriesBucket)
		if eb == nil {
			return corruptf(path, nil, "missing %q bucket", entriesBucket)
		}
		return eb.ForEach(func(k, v []byte) error {
			var e entry
			if err := msgpack.Unmarshal(v, &e); err != nil {
				return corruptf(path, err, "decoding entry %q", k)
			}
			key := make([]byte, len(k))
			copy(key, k)
			loaded = append(loaded, rawEntry{key: key, entry: e})
			return nil
		})
	})
	if err != nil {
		return nil, meta, err
	}

	if len(loaded) != meta.Keys {
		return nil, meta, corruptf(path, nil, "expected %d entries, found %d", meta.Keys, len(loaded))
	}

	// Entries come out of bbolt in key order; replay needs timestamp order.
	slices.SortFunc(loaded, func(a, b rawEntry) int {
		return cmp.Compare(a.Ts, b.Ts)
	})

	t := vtrie.New()
	for _, e := range loaded {
		if err := t.InsertAt(e.key, e.Value, e.Ts); err != nil {
			return nil, meta, corruptf(path, err, "replaying entry %q at ts %d", e.key, e.Ts)
		}
	}
	return t, meta, nil
}
