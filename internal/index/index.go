// Package index implements the harvester's Persistent Index: three
// disjoint ordered key/value maps (entries, ident, fail) backed by a
// single embedded bbolt store, per spec.md §4.1.
//
// bbolt gives every operation here for free what spec.md §4.1 demands
// by contract: single-writer transactions, MVCC read snapshots for
// scans, and all-or-nothing durability of a committed transaction on
// crash.
package index

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/kermitt2/oa-harvester/internal/record"
)

var (
	bucketEntries = []byte("entries")
	bucketIdent   = []byte("ident")
	bucketFail    = []byte("fail")
)

// Index wraps a bbolt database providing the four operations spec.md
// §4.1 names.
type Index struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the bbolt file at path and ensures
// all three buckets exist.
func Open(path string) (*Index, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening index %q: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketEntries, bucketIdent, bucketFail} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %q: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing index %q: %w", path, err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying store.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// LookupIdentifier returns the UUID mapped to the given strong
// identifier, or ok=false if none is mapped.
func (idx *Index) LookupIdentifier(s string) (uuid.UUID, bool, error) {
	var id uuid.UUID
	var found bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketIdent).Get([]byte(s))
		if v == nil {
			return nil
		}
		parsed, err := uuid.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("corrupt ident mapping for %q: %w", s, err)
		}
		id, found = parsed, true
		return nil
	})
	return id, found, err
}

// PutIdentifierMapping atomically commits ident[s] = u. It is called
// immediately on first sight of an identifier, before the owning batch
// completes, so a crash never orphans or duplicates a UUID (spec.md
// §4.2 step 3).
func (idx *Index) PutIdentifierMapping(s string, u uuid.UUID) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIdent).Put([]byte(s), []byte(u.String()))
	})
}

// PutEntry atomically writes entries[u] = entry.
func (idx *Index) PutEntry(u uuid.UUID, entry *record.CatalogueEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding catalogue entry %s: %w", u, err)
	}
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(u.String()), data)
	})
}

// GetEntry reads entries[u], returning ok=false if absent.
func (idx *Index) GetEntry(u uuid.UUID) (*record.CatalogueEntry, bool, error) {
	var entry *record.CatalogueEntry
	err := idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEntries).Get([]byte(u.String()))
		if v == nil {
			return nil
		}
		var e record.CatalogueEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return fmt.Errorf("decoding catalogue entry %s: %w", u, err)
		}
		entry = &e
		return nil
	})
	return entry, entry != nil, err
}

// PutFail atomically writes fail[u] = errorCode.
func (idx *Index) PutFail(u uuid.UUID, errorCode string) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFail).Put([]byte(u.String()), []byte(errorCode))
	})
}

// GetFail returns the last recorded error code for u, if any.
func (idx *Index) GetFail(u uuid.UUID) (string, bool, error) {
	var code string
	var found bool
	err := idx.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketFail).Get([]byte(u.String()))
		if v == nil {
			return nil
		}
		code, found = string(v), true
		return nil
	})
	return code, found, err
}

// DeleteFail atomically removes fail[u], used when a reprocessed record
// succeeds.
func (idx *Index) DeleteFail(u uuid.UUID) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFail).Delete([]byte(u.String()))
	})
}

// Map names one of the three index buckets, for Scan.
type Map int

const (
	MapEntries Map = iota
	MapIdent
	MapFail
)

func (m Map) bucketName() []byte {
	switch m {
	case MapEntries:
		return bucketEntries
	case MapIdent:
		return bucketIdent
	case MapFail:
		return bucketFail
	default:
		panic(fmt.Sprintf("unknown index map %d", m))
	}
}

// Scan iterates every key/value pair in the given map, holding a single
// read snapshot for the duration of the call (bbolt's View transaction
// semantics). fn's key/value slices are only valid for the duration of
// a single call and must be copied if retained.
func (idx *Index) Scan(m Map, fn func(key, value []byte) error) error {
	return idx.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(m.bucketName()).ForEach(fn)
	})
}

// Stats reports the number of keys in entries and fail, for Diagnostic.
func (idx *Index) Stats() (entries, fails int, err error) {
	err = idx.db.View(func(tx *bolt.Tx) error {
		entries = tx.Bucket(bucketEntries).Stats().KeyN
		fails = tx.Bucket(bucketFail).Stats().KeyN
		return nil
	})
	return entries, fails, err
}
