package backend

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/thetatoken/hubchannel/common/util"
	"github.com/thetatoken/hubchannel/store"
	"github.com/thetatoken/hubchannel/store/database"
)

var logger = util.GetLoggerForModule("store")

var _ database.Database = (*LDBDatabase)(nil)

const (
	minCacheMiB    = 16
	minFileHandles = 16
)

// Signed updates are evidence for a dispute, every write is synced.
var syncWrite = &opt.WriteOptions{Sync: true}

// LDBDatabase persists the signed update history in LevelDB.
type LDBDatabase struct {
	path string
	db   *leveldb.DB
}

// NewLDBDatabase opens or creates the LevelDB database at path. cache is in
// MiB. A corrupted database is recovered before use.
func NewLDBDatabase(path string, cache int, handles int) (*LDBDatabase, error) {
	if cache < minCacheMiB {
		cache = minCacheMiB
	}
	if handles < minFileHandles {
		handles = minFileHandles
	}

	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cache / 2 * opt.MiB,
		WriteBuffer:            cache / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	})
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		logger.Warnf("History at %v is corrupted, recovering", path)
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	logger.Debugf("Opened history at %v, cache: %vMiB, handles: %v", path, cache, handles)

	return &LDBDatabase{path: path, db: db}, nil
}

// Path returns the database directory.
func (db *LDBDatabase) Path() string {
	return db.path
}

func (db *LDBDatabase) Put(key []byte, value []byte) error {
	return db.db.Put(key, value, syncWrite)
}

func (db *LDBDatabase) Has(key []byte) (bool, error) {
	return db.db.Has(key, nil)
}

// Get returns store.ErrKeyNotFound for a missing key.
func (db *LDBDatabase) Get(key []byte) ([]byte, error) {
	value, err := db.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, store.ErrKeyNotFound
	}
	return value, err
}

func (db *LDBDatabase) Delete(key []byte) error {
	return db.db.Delete(key, syncWrite)
}

// NewIteratorWithPrefix iterates over a consistent snapshot.
func (db *LDBDatabase) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	return db.db.NewIterator(ldbutil.BytesPrefix(prefix), nil)
}

func (db *LDBDatabase) Close() {
	if err := db.db.Close(); err != nil {
		logger.Errorf("Failed to close history at %v: %v", db.path, err)
		return
	}
	logger.Debugf("Closed history at %v", db.path)
}

func (db *LDBDatabase) NewBatch() database.Batch {
	return &ldbBatch{db: db.db, b: new(leveldb.Batch)}
}

type ldbBatch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

func (b *ldbBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(value)
	return nil
}

func (b *ldbBatch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size++
	return nil
}

func (b *ldbBatch) Write() error {
	if err := b.db.Write(b.b, syncWrite); err != nil {
		return err
	}
	b.Reset()
	return nil
}

func (b *ldbBatch) ValueSize() int {
	return b.size
}

func (b *ldbBatch) Reset() {
	b.b.Reset()
	b.size = 0
}
