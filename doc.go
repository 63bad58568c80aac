/*
Package vtrie implements a versioned in-memory ordered key-value store
on top of a copy-on-write radix trie.

We implement:

1. A compressed radix trie with immutable, multiply-owned nodes. Every
write rebuilds only the nodes along the touched key path; all sibling
subtrees remain physically shared with every prior version of the tree.

2. Snapshots, isolated point-in-time views of the keyspace. A snapshot
captures the store's root and timestamp at creation and then accepts its
own writes, on its own timeline, without affecting the store or sibling
snapshots.

3. Readers, iteration pointers pinned to the node graph current at the
moment of issue. A reader keeps enumerating exactly that key set no
matter what the owning snapshot does afterwards, and a snapshot refuses
to close while any of its readers remain open.

# Technical Details

**Timestamps.**
Every successful write commits at a logical timestamp one greater than
the previous write on the same timeline. The store owns the base
counter; each snapshot copies it at creation and advances its copy
privately. Reads are bounded: Get(key, ts) only observes writes whose
commit timestamp is at most ts.

**Isolation.**
Nodes are never mutated in place. A write builds the replacement path
off to the side and then rebinds the writer's single root slot, so no
consumer ever observes a partially built tree, and two snapshots share
nothing mutable.

**Values.**
The trie stores raw []byte values. A thin typed layer (PutDoc, GetDoc)
marshals document structs with msgpack, mirroring the split between raw
buckets and encoded rows in a conventional embedded database.

Subpackage dump archives the contents visible through a pinned reader
into a bbolt file and restores such archives into a fresh tree. The
store itself is purely in-memory and defines no on-disk layout.
*/
package vtrie
