package vtrie

import (
	"errors"
	"testing"
)

type testUser struct {
	Email string `msgpack:"e"`
	Name  string `msgpack:"n"`
}

func TestDocsRoundtrip(t *testing.T) {
	tree := New()
	if err := PutDoc(tree, "users/1", &testUser{Email: "a@example.com", Name: "A"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	u, ts, err := GetDocLatest[testUser](tree, "users/1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Email != "a@example.com" || u.Name != "A" {
		t.Errorf("got %+v", u)
	}
	if ts != 1 {
		t.Errorf("commit ts = %d, wanted 1", ts)
	}
}

func TestDocsVisibilityBounds(t *testing.T) {
	tree := New()
	ensure(PutDoc(tree, "u", &testUser{Name: "v1"}))
	ensure(PutDoc(tree, "u", &testUser{Name: "v2"}))

	if _, _, err := GetDoc[testUser](tree, "u", 1); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("old version still visible after overwrite: %v", err)
	}
	u, ts, err := GetDoc[testUser](tree, "u", 2)
	if err != nil || u.Name != "v2" || ts != 2 {
		t.Errorf("get@2 = (%+v, %d, %v)", u, ts, err)
	}
	if _, _, err := GetDoc[testUser](tree, "missing", 2); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("missing doc = %v, wanted ErrKeyNotFound", err)
	}
}

func TestDocsSnapshotIsolation(t *testing.T) {
	tree := New()
	ensure(PutDoc(tree, "u", &testUser{Name: "base"}))

	snap1 := tree.CreateSnapshot()
	snap2 := tree.CreateSnapshot()
	ensure(PutDoc(snap1, "u", &testUser{Name: "snap1"}))

	u, _, err := GetDocLatest[testUser](snap1, "u")
	if err != nil || u.Name != "snap1" {
		t.Errorf("snap1 doc = (%+v, %v)", u, err)
	}
	u, _, err = GetDocLatest[testUser](snap2, "u")
	if err != nil || u.Name != "base" {
		t.Errorf("snap2 doc = (%+v, %v)", u, err)
	}
	u, _, err = GetDocLatest[testUser](tree, "u")
	if err != nil || u.Name != "base" {
		t.Errorf("tree doc = (%+v, %v)", u, err)
	}
}

func TestDocsDecodeError(t *testing.T) {
	tree := New()
	ensure(tree.Insert([]byte("broken"), []byte{0xc1})) // not valid msgpack

	_, _, err := GetDocLatest[testUser](tree, "broken")
	var docErr *DocError
	if !errors.As(err, &docErr) {
		t.Fatalf("decode failure = %v, wanted *DocError", err)
	}
	if docErr.Key != "broken" {
		t.Errorf("DocError.Key = %q", docErr.Key)
	}
	if errors.Is(err, ErrKeyNotFound) {
		t.Errorf("codec error must not alias visibility errors")
	}
}
