package backend

import (
	"sort"
	"strings"
	"sync"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/store"
	"github.com/thetatoken/hubchannel/store/database"
)

var _ database.Database = (*MemDatabase)(nil)

// MemDatabase keeps the history in a map. Nothing survives the process, so
// it backs tests and dry runs only.
type MemDatabase struct {
	db   map[string][]byte
	lock sync.RWMutex
}

func NewMemDatabase() *MemDatabase {
	return &MemDatabase{
		db: make(map[string][]byte),
	}
}

func (db *MemDatabase) Put(key []byte, value []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	db.db[string(key)] = common.CopyBytes(value)
	return nil
}

func (db *MemDatabase) Has(key []byte) (bool, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	_, ok := db.db[string(key)]
	return ok, nil
}

func (db *MemDatabase) Get(key []byte) ([]byte, error) {
	db.lock.RLock()
	defer db.lock.RUnlock()

	if entry, ok := db.db[string(key)]; ok {
		return common.CopyBytes(entry), nil
	}
	return nil, store.ErrKeyNotFound
}

func (db *MemDatabase) Delete(key []byte) error {
	db.lock.Lock()
	defer db.lock.Unlock()

	delete(db.db, string(key))
	return nil
}

func (db *MemDatabase) Close() {}

// Len returns the number of keys held.
func (db *MemDatabase) Len() int {
	db.lock.RLock()
	defer db.lock.RUnlock()

	return len(db.db)
}

// NewIteratorWithPrefix iterates over a snapshot taken at call time.
func (db *MemDatabase) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	db.lock.RLock()
	defer db.lock.RUnlock()

	p := string(prefix)
	it := &memIterator{pos: -1}
	for k := range db.db {
		if strings.HasPrefix(k, p) {
			it.keys = append(it.keys, k)
		}
	}
	sort.Strings(it.keys)
	it.values = make([][]byte, len(it.keys))
	for i, k := range it.keys {
		it.values[i] = common.CopyBytes(db.db[k])
	}
	return it
}

func (db *MemDatabase) NewBatch() database.Batch {
	return &memBatch{db: db}
}

type memIterator struct {
	keys   []string
	values [][]byte
	pos    int
}

func (it *memIterator) Next() bool {
	if it.pos >= len(it.keys) {
		return false
	}
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memIterator) Key() []byte {
	if it.pos < 0 || it.pos >= len(it.keys) {
		return nil
	}
	return []byte(it.keys[it.pos])
}

func (it *memIterator) Value() []byte {
	if it.pos < 0 || it.pos >= len(it.keys) {
		return nil
	}
	return it.values[it.pos]
}

func (it *memIterator) Error() error { return nil }

func (it *memIterator) Release() {
	it.keys, it.values = nil, nil
}

type memWrite struct {
	key, value []byte
	deleted    bool
}

type memBatch struct {
	db     *MemDatabase
	writes []memWrite
	size   int
}

func (b *memBatch) Put(key, value []byte) error {
	b.writes = append(b.writes, memWrite{key: common.CopyBytes(key), value: common.CopyBytes(value)})
	b.size += len(value)
	return nil
}

func (b *memBatch) Delete(key []byte) error {
	b.writes = append(b.writes, memWrite{key: common.CopyBytes(key), deleted: true})
	b.size++
	return nil
}

// Write applies the batch under a single lock so readers never observe a
// partial batch.
func (b *memBatch) Write() error {
	b.db.lock.Lock()
	defer b.db.lock.Unlock()

	for _, w := range b.writes {
		if w.deleted {
			delete(b.db.db, string(w.key))
		} else {
			b.db.db[string(w.key)] = w.value
		}
	}
	b.Reset()
	return nil
}

func (b *memBatch) ValueSize() int {
	return b.size
}

func (b *memBatch) Reset() {
	b.writes = b.writes[:0]
	b.size = 0
}
