package keystore

import (
	"encoding/hex"
	"encoding/json"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
)

var _ Keystore = (*KeystorePlain)(nil)

// KeystorePlain stores private keys unencrypted. Only suitable for tests and
// throwaway identities.
type KeystorePlain struct {
	dir keyDir
}

func NewKeystorePlain(keysDirRoot string) (KeystorePlain, error) {
	dir, err := openKeyDir(keysDirRoot, "plain")
	if err != nil {
		return KeystorePlain{}, err
	}
	return KeystorePlain{dir: dir}, nil
}

func (ks KeystorePlain) ListKeyAddresses() ([]common.Address, error) {
	return ks.dir.list()
}

func (ks KeystorePlain) GetKey(address common.Address, auth string) (*Key, error) {
	content, err := ks.dir.read(address)
	if err != nil {
		return nil, err
	}

	var plainKeyJs plainKeyJSON
	if err := json.Unmarshal(content, &plainKeyJs); err != nil {
		return nil, err
	}
	if plainKeyJs.Address != hex.EncodeToString(address[:]) {
		return nil, errors.Errorf("key content mismatch: have address %v, want %x", plainKeyJs.Address, address)
	}

	privKeyBytes, err := hex.DecodeString(plainKeyJs.PrivateKey)
	if err != nil {
		return nil, err
	}
	privKey, err := crypto.PrivateKeyFromBytes(privKeyBytes)
	if err != nil {
		return nil, err
	}
	if privKey.Address() != address {
		return nil, errors.Errorf("key content mismatch: private key belongs to %v", privKey.Address().Hex())
	}

	return &Key{
		Id:         uuid.Parse(plainKeyJs.Id),
		Address:    address,
		PrivateKey: privKey,
	}, nil
}

func (ks KeystorePlain) StoreKey(key *Key, auth string) error {
	content, err := json.Marshal(&plainKeyJSON{
		Address:    hex.EncodeToString(key.Address[:]),
		PrivateKey: hex.EncodeToString(key.PrivateKey.ToBytes()),
		Id:         key.Id.String(),
		Version:    version,
	})
	if err != nil {
		return err
	}
	return ks.dir.write(key.Address, content)
}

func (ks KeystorePlain) DeleteKey(address common.Address, auth string) error {
	return ks.dir.remove(address)
}

type plainKeyJSON struct {
	Address    string `json:"address"`
	PrivateKey string `json:"privatekey"`
	Id         string `json:"id"`
	Version    int    `json:"version"`
}
