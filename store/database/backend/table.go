package backend

import (
	"github.com/thetatoken/hubchannel/store/database"
)

type table struct {
	db     database.Database
	prefix string
}

// NewTable returns a Database object that prefixes all keys with a given
// string.
func NewTable(db database.Database, prefix string) database.Database {
	return &table{
		db:     db,
		prefix: prefix,
	}
}

func (dt *table) key(key []byte) []byte {
	return append([]byte(dt.prefix), key...)
}

func (dt *table) Put(key []byte, value []byte) error {
	return dt.db.Put(dt.key(key), value)
}

func (dt *table) Has(key []byte) (bool, error) {
	return dt.db.Has(dt.key(key))
}

func (dt *table) Get(key []byte) ([]byte, error) {
	return dt.db.Get(dt.key(key))
}

func (dt *table) Delete(key []byte) error {
	return dt.db.Delete(dt.key(key))
}

func (dt *table) Close() {
	// Do nothing; don't close the underlying DB.
}

// NewIteratorWithPrefix strips the table prefix from the returned keys.
func (dt *table) NewIteratorWithPrefix(prefix []byte) database.Iterator {
	return &tableIterator{dt.db.NewIteratorWithPrefix(dt.key(prefix)), len(dt.prefix)}
}

func (dt *table) NewBatch() database.Batch {
	return &tableBatch{dt.db.NewBatch(), dt.prefix}
}

type tableBatch struct {
	batch  database.Batch
	prefix string
}

func (tb *tableBatch) Put(key, value []byte) error {
	return tb.batch.Put(append([]byte(tb.prefix), key...), value)
}

func (tb *tableBatch) Delete(key []byte) error {
	return tb.batch.Delete(append([]byte(tb.prefix), key...))
}

func (tb *tableBatch) Write() error {
	return tb.batch.Write()
}

func (tb *tableBatch) ValueSize() int {
	return tb.batch.ValueSize()
}

func (tb *tableBatch) Reset() {
	tb.batch.Reset()
}

type tableIterator struct {
	database.Iterator
	prefixLen int
}

func (it *tableIterator) Key() []byte {
	key := it.Iterator.Key()
	if len(key) < it.prefixLen {
		return nil
	}
	return key[it.prefixLen:]
}
