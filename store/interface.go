package store

import (
	"errors"

	"github.com/thetatoken/hubchannel/common"
)

var (
	// ErrKeyNotFound for missing key.
	ErrKeyNotFound = errors.New("KeyNotFound")
)

// Store is the interface for key/value storages.
type Store interface {
	Put(key common.Bytes, value interface{}) error
	Delete(key common.Bytes) error
	Get(key common.Bytes, value interface{}) error
}
