// Adapted for Theta
// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

/*

KeystoreEncrypted stores keys in the Web3 Secret Storage format: the private
key is AES-128-CTR encrypted under a scrypt (or, when reading, pbkdf2)
derived key and authenticated with a keccak MAC.

*/

package keystore

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
)

const (
	keyHeaderKDF = "scrypt"

	// StandardScryptN is the N parameter of Scrypt encryption algorithm, using 256MB
	// memory and taking approximately 1s CPU time on a modern processor.
	StandardScryptN = 1 << 18

	// StandardScryptP is the P parameter of Scrypt encryption algorithm, using 256MB
	// memory and taking approximately 1s CPU time on a modern processor.
	StandardScryptP = 1

	// LightScryptN is the N parameter of Scrypt encryption algorithm, using 4MB
	// memory and taking approximately 100ms CPU time on a modern processor.
	LightScryptN = 1 << 12

	// LightScryptP is the P parameter of Scrypt encryption algorithm, using 4MB
	// memory and taking approximately 100ms CPU time on a modern processor.
	LightScryptP = 6

	scryptR     = 8
	scryptDKLen = 32
)

var ErrDecrypt = errors.New("could not decrypt key with given password")

var _ Keystore = (*KeystoreEncrypted)(nil)

type KeystoreEncrypted struct {
	dir     keyDir
	scryptN int
	scryptP int
}

func NewKeystoreEncrypted(keysDirRoot string, scryptN, scryptP int) (KeystoreEncrypted, error) {
	dir, err := openKeyDir(keysDirRoot, "encrypted")
	if err != nil {
		return KeystoreEncrypted{}, err
	}
	return KeystoreEncrypted{dir: dir, scryptN: scryptN, scryptP: scryptP}, nil
}

func (ks KeystoreEncrypted) ListKeyAddresses() ([]common.Address, error) {
	return ks.dir.list()
}

func (ks KeystoreEncrypted) GetKey(address common.Address, auth string) (*Key, error) {
	keyjson, err := ks.dir.read(address)
	if err != nil {
		return nil, err
	}
	key, err := DecryptKey(keyjson, auth)
	if err != nil {
		return nil, err
	}
	// Make sure we're really operating on the requested key (no swap attacks)
	if key.Address != address {
		return nil, errors.Errorf("key content mismatch: have account %x, want %x", key.Address, address)
	}
	return key, nil
}

func (ks KeystoreEncrypted) StoreKey(key *Key, auth string) error {
	keyjson, err := EncryptKey(key, auth, ks.scryptN, ks.scryptP)
	if err != nil {
		return err
	}
	return ks.dir.write(key.Address, keyjson)
}

// DeleteKey removes the key after checking auth decrypts it.
func (ks KeystoreEncrypted) DeleteKey(address common.Address, auth string) error {
	if _, err := ks.GetKey(address, auth); err != nil {
		return err
	}
	return ks.dir.remove(address)
}

// EncryptKey encrypts a key using the specified scrypt parameters into a json
// blob that can be decrypted later on.
func EncryptKey(key *Key, auth string, scryptN, scryptP int) ([]byte, error) {
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Wrap(err, "reading from crypto/rand failed")
	}
	derivedKey, err := scrypt.Key([]byte(auth), salt, scryptN, scryptR, scryptP, scryptDKLen)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, errors.Wrap(err, "reading from crypto/rand failed")
	}
	cipherText, err := aesCTRXOR(derivedKey[:16], key.PrivateKey.ToBytes(), iv)
	if err != nil {
		return nil, err
	}
	mac := crypto.Keccak256(derivedKey[16:32], cipherText)

	return json.Marshal(encryptedKeyJSON{
		Address: hex.EncodeToString(key.Address[:]),
		Crypto: cryptoJSON{
			Cipher:       "aes-128-ctr",
			CipherText:   hex.EncodeToString(cipherText),
			CipherParams: cipherparamsJSON{IV: hex.EncodeToString(iv)},
			KDF:          keyHeaderKDF,
			KDFParams: map[string]interface{}{
				"n":     scryptN,
				"r":     scryptR,
				"p":     scryptP,
				"dklen": scryptDKLen,
				"salt":  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(mac),
		},
		Id:      key.Id.String(),
		Version: version,
	})
}

// DecryptKey decrypts a key from a json blob, returning the private key itself.
func DecryptKey(keyjson []byte, auth string) (*Key, error) {
	var encryptedKeyJs encryptedKeyJSON
	if err := json.Unmarshal(keyjson, &encryptedKeyJs); err != nil {
		return nil, err
	}
	if encryptedKeyJs.Version != version {
		return nil, errors.Errorf("version %v not supported", encryptedKeyJs.Version)
	}
	if encryptedKeyJs.Crypto.Cipher != "aes-128-ctr" {
		return nil, errors.Errorf("cipher not supported: %v", encryptedKeyJs.Crypto.Cipher)
	}

	mac, err := hex.DecodeString(encryptedKeyJs.Crypto.MAC)
	if err != nil {
		return nil, err
	}
	iv, err := hex.DecodeString(encryptedKeyJs.Crypto.CipherParams.IV)
	if err != nil {
		return nil, err
	}
	cipherText, err := hex.DecodeString(encryptedKeyJs.Crypto.CipherText)
	if err != nil {
		return nil, err
	}

	derivedKey, err := getKDFKey(encryptedKeyJs.Crypto, auth)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(crypto.Keccak256(derivedKey[16:32], cipherText), mac) {
		return nil, ErrDecrypt
	}

	keyBytes, err := aesCTRXOR(derivedKey[:16], cipherText, iv)
	if err != nil {
		return nil, err
	}
	// Legacy keys may be shorter than 32 bytes.
	privKey, err := crypto.PrivateKeyFromBytes(ethcommon.LeftPadBytes(keyBytes, 32))
	if err != nil {
		return nil, err
	}

	return &Key{
		Id:         uuid.Parse(encryptedKeyJs.Id),
		Address:    privKey.Address(),
		PrivateKey: privKey,
	}, nil
}

func getKDFKey(cryptoJSON cryptoJSON, auth string) ([]byte, error) {
	authArray := []byte(auth)
	saltHex, ok := cryptoJSON.KDFParams["salt"].(string)
	if !ok {
		return nil, errors.New("missing KDF salt")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, err
	}
	dkLen := ensureInt(cryptoJSON.KDFParams["dklen"])

	switch cryptoJSON.KDF {
	case keyHeaderKDF:
		n := ensureInt(cryptoJSON.KDFParams["n"])
		r := ensureInt(cryptoJSON.KDFParams["r"])
		p := ensureInt(cryptoJSON.KDFParams["p"])
		return scrypt.Key(authArray, salt, n, r, p, dkLen)
	case "pbkdf2":
		c := ensureInt(cryptoJSON.KDFParams["c"])
		if prf, _ := cryptoJSON.KDFParams["prf"].(string); prf != "hmac-sha256" {
			return nil, errors.Errorf("unsupported PBKDF2 PRF: %s", prf)
		}
		return pbkdf2.Key(authArray, salt, c, dkLen, sha256.New), nil
	}
	return nil, errors.Errorf("unsupported KDF: %s", cryptoJSON.KDF)
}

func aesCTRXOR(key, inText, iv []byte) ([]byte, error) {
	// AES-128 is selected due to size of encryptKey.
	aesBlock, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	stream := cipher.NewCTR(aesBlock, iv)
	outText := make([]byte, len(inText))
	stream.XORKeyStream(outText, inText)
	return outText, nil
}

// Numbers in the KDF params decode as float64.
func ensureInt(x interface{}) int {
	switch v := x.(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

type encryptedKeyJSON struct {
	Address string     `json:"address"`
	Crypto  cryptoJSON `json:"crypto"`
	Id      string     `json:"id"`
	Version int        `json:"version"`
}

type cryptoJSON struct {
	Cipher       string                 `json:"cipher"`
	CipherText   string                 `json:"ciphertext"`
	CipherParams cipherparamsJSON       `json:"cipherparams"`
	KDF          string                 `json:"kdf"`
	KDFParams    map[string]interface{} `json:"kdfparams"`
	MAC          string                 `json:"mac"`
}

type cipherparamsJSON struct {
	IV string `json:"iv"`
}
