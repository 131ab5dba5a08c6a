package kvstore

import (
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/store"
	"github.com/thetatoken/hubchannel/store/database"
)

var _ store.Store = (*KVStore)(nil)

// NewKVStore create a new instance of KVStore.
func NewKVStore(db database.Database) *KVStore {
	return &KVStore{db}
}

// KVStore a Database wrapped object. Values are RLP encoded.
type KVStore struct {
	db database.Database
}

// Put upserts key/value into DB
func (store *KVStore) Put(key common.Bytes, value interface{}) error {
	encodedValue, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return store.db.Put(key, encodedValue)
}

// Delete deletes key entry from DB
func (store *KVStore) Delete(key common.Bytes) error {
	return store.db.Delete(key)
}

// Get looks up DB with key and returns result into value (passed by reference)
func (store *KVStore) Get(key common.Bytes, value interface{}) error {
	encodedValue, err := store.db.Get(key)
	if err != nil {
		return err
	}
	return rlp.DecodeBytes(encodedValue, value)
}

// Has returns true if key exists
func (store *KVStore) Has(key common.Bytes) (bool, error) {
	return store.db.Has(key)
}

// Traverse calls fn for every key under prefix in ascending order, stopping
// at the first error. decode RLP decodes the value of the current key.
func (store *KVStore) Traverse(prefix common.Bytes, fn func(key common.Bytes, decode func(value interface{}) error) error) error {
	it := store.db.NewIteratorWithPrefix(prefix)
	defer it.Release()

	for it.Next() {
		raw := it.Value()
		decode := func(value interface{}) error {
			return rlp.DecodeBytes(raw, value)
		}
		if err := fn(common.CopyBytes(it.Key()), decode); err != nil {
			return err
		}
	}
	return it.Error()
}

// NewBatch starts a batch of RLP encoded writes.
func (store *KVStore) NewBatch() *Batch {
	return &Batch{store.db.NewBatch()}
}

// Batch buffers RLP encoded writes until Write is called.
type Batch struct {
	batch database.Batch
}

func (b *Batch) Put(key common.Bytes, value interface{}) error {
	encodedValue, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return b.batch.Put(key, encodedValue)
}

func (b *Batch) Write() error {
	return b.batch.Write()
}
