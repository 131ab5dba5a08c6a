package keystore

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
)

const version = 3

const keysDirPerm = 0700

// ErrKeyNotFound is returned when no key file exists for an address.
var ErrKeyNotFound = errors.New("key not found")

var keyFileName = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)

//
// Key is a signing identity. The engine never signs with an implicit
// default key, callers load one explicitly from a Keystore.
//
type Key struct {
	Id         uuid.UUID
	Address    common.Address
	PrivateKey *crypto.PrivateKey
}

// NewKey wraps privKey with a fresh key id.
func NewKey(privKey *crypto.PrivateKey) *Key {
	return &Key{
		Id:         uuid.NewRandom(),
		Address:    privKey.Address(),
		PrivateKey: privKey,
	}
}

// GenerateKey creates a random key.
func GenerateKey() (*Key, error) {
	privKey, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return NewKey(privKey), nil
}

//
// Keystore persists keys on disk, one file per address.
//
type Keystore interface {
	// List the addresses of all the stored keys
	ListKeyAddresses() ([]common.Address, error)

	// Loads and, if needed, decrypts the key from disk.
	GetKey(address common.Address, auth string) (*Key, error)

	// Writes and, if needed, encrypts the key.
	StoreKey(k *Key, auth string) error

	// Deletes the key from the disk.
	DeleteKey(address common.Address, auth string) error
}

// NewKeystore opens the encrypted keystore under root, or the plain one when
// encrypted is false.
func NewKeystore(root string, encrypted bool) (Keystore, error) {
	if encrypted {
		return NewKeystoreEncrypted(root, StandardScryptN, StandardScryptP)
	}
	return NewKeystorePlain(root)
}

// keyDir is the directory layout shared by both keystores.
type keyDir struct {
	path string
}

func openKeyDir(root, name string) (keyDir, error) {
	dir := filepath.Join(root, name)
	if err := common.EnsureDir(dir, keysDirPerm); err != nil {
		return keyDir{}, err
	}
	return keyDir{path: dir}, nil
}

func (d keyDir) list() ([]common.Address, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, err
	}
	addresses := []common.Address{}
	for _, entry := range entries {
		if entry.IsDir() || !keyFileName.MatchString(entry.Name()) {
			continue
		}
		addresses = append(addresses, common.HexToAddress(entry.Name()))
	}
	return addresses, nil
}

func (d keyDir) filePath(address common.Address) string {
	return filepath.Join(d.path, strings.ToLower(address.Hex()[2:]))
}

func (d keyDir) read(address common.Address) ([]byte, error) {
	content, err := os.ReadFile(d.filePath(address))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(ErrKeyNotFound, "address %v", address.Hex())
	}
	return content, err
}

func (d keyDir) write(address common.Address, content []byte) error {
	return common.WriteFileAtomic(d.filePath(address), content, 0600)
}

func (d keyDir) remove(address common.Address) error {
	err := os.Remove(d.filePath(address))
	if os.IsNotExist(err) {
		return errors.Wrapf(ErrKeyNotFound, "address %v", address.Hex())
	}
	os.Remove(d.filePath(address) + ".bak")
	return err
}
