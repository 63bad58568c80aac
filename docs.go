package vtrie

import (
	"github.com/vmihailenco/msgpack/v5"
)

// KV is the raw byte-level surface shared by Tree and Snapshot. The
// typed document helpers below work against either one.
type KV interface {
	Insert(key, value []byte) error
	Get(key []byte, ts uint64) ([]byte, uint64, error)
	Ts() uint64
}

// PutDoc marshals row with msgpack and writes it under key. Codec
// failures are reported as *DocError before anything is written.
func PutDoc[Row any](kv KV, key string, row *Row) error {
	raw, err := msgpack.Marshal(row)
	if err != nil {
		return docErrf(key, err, "encoding %T", row)
	}
	return kv.Insert([]byte(key), raw)
}

// GetDoc reads the document under key as of ts and unmarshals it into a
// new Row. Visibility failures surface as ErrKeyNotFound, decode
// failures as *DocError.
func GetDoc[Row any](kv KV, key string, ts uint64) (*Row, uint64, error) {
	raw, commitTs, err := kv.Get([]byte(key), ts)
	if err != nil {
		return nil, 0, err
	}
	row := new(Row)
	if err := msgpack.Unmarshal(raw, row); err != nil {
		return nil, 0, docErrf(key, err, "decoding %T", row)
	}
	return row, commitTs, nil
}

// GetDocLatest reads the document under key as of the view's current
// timestamp.
func GetDocLatest[Row any](kv KV, key string) (*Row, uint64, error) {
	return GetDoc[Row](kv, key, kv.Ts())
}
