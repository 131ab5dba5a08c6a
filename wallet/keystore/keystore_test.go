package keystore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/crypto"
)

const (
	veryLightScryptN = 2
	veryLightScryptP = 1
)

func tmpKeystore(t *testing.T, encrypted bool) Keystore {
	dir, err := ioutil.TempDir("", "hubchannel-keystore-test")
	require.Nil(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	var ks Keystore
	if encrypted {
		ks, err = NewKeystoreEncrypted(dir, veryLightScryptN, veryLightScryptP)
	} else {
		ks, err = NewKeystorePlain(dir)
	}
	require.Nil(t, err)
	return ks
}

func storeNewKey(t *testing.T, ks Keystore, auth string) *Key {
	key, err := GenerateKey()
	require.Nil(t, err)
	require.Nil(t, ks.StoreKey(key, auth))
	return key
}

func TestKeystoreRoundTrip(t *testing.T) {
	for _, encrypted := range []bool{false, true} {
		ks := tmpKeystore(t, encrypted)
		k1 := storeNewKey(t, ks, "foo")

		k2, err := ks.GetKey(k1.Address, "foo")
		require.Nil(t, err, "encrypted=%v", encrypted)
		assert.Equal(t, k1.Address, k2.Address)
		assert.Equal(t, k1.PrivateKey.ToBytes(), k2.PrivateKey.ToBytes())
		assert.Equal(t, k1.Id.String(), k2.Id.String())
	}
}

func TestKeystoreListAndDelete(t *testing.T) {
	assert := assert.New(t)

	for _, encrypted := range []bool{false, true} {
		ks := tmpKeystore(t, encrypted)
		k1 := storeNewKey(t, ks, "pw")
		k2 := storeNewKey(t, ks, "pw")

		addresses, err := ks.ListKeyAddresses()
		assert.Nil(err)
		assert.ElementsMatch(addresses, []common.Address{k1.Address, k2.Address})

		assert.Nil(ks.DeleteKey(k1.Address, "pw"))
		addresses, err = ks.ListKeyAddresses()
		assert.Nil(err)
		assert.Len(addresses, 1)

		_, err = ks.GetKey(k1.Address, "pw")
		assert.True(errors.Is(err, ErrKeyNotFound))
	}
}

func TestKeystoreEncryptedWrongPassword(t *testing.T) {
	assert := assert.New(t)
	ks := tmpKeystore(t, true)
	k1 := storeNewKey(t, ks, "foo")

	_, err := ks.GetKey(k1.Address, "bar")
	assert.Equal(ErrDecrypt, err)

	// Deleting requires the password as well.
	assert.Equal(ErrDecrypt, ks.DeleteKey(k1.Address, "bar"))
	_, err = ks.GetKey(k1.Address, "foo")
	assert.Nil(err)
}

func TestKeystoreEncryptedFileHidesPrivateKey(t *testing.T) {
	ks := tmpKeystore(t, true).(KeystoreEncrypted)
	k1 := storeNewKey(t, ks, "foo")

	content, err := ioutil.ReadFile(ks.dir.filePath(k1.Address))
	require.Nil(t, err)
	assert.NotContains(t, string(content), hex.EncodeToString(k1.PrivateKey.ToBytes()))
}

func TestKeystoreSwappedFileRejected(t *testing.T) {
	ks := tmpKeystore(t, false).(KeystorePlain)
	k1 := storeNewKey(t, ks, "")
	k2 := storeNewKey(t, ks, "")

	content, err := ioutil.ReadFile(ks.dir.filePath(k2.Address))
	require.Nil(t, err)
	require.Nil(t, ioutil.WriteFile(ks.dir.filePath(k1.Address), content, 0600))

	_, err = ks.GetKey(k1.Address, "")
	assert.NotNil(t, err)
}

func TestListIgnoresForeignFiles(t *testing.T) {
	ks := tmpKeystore(t, false).(KeystorePlain)
	storeNewKey(t, ks, "")
	require.Nil(t, ioutil.WriteFile(filepath.Join(ks.dir.path, "README"), []byte("x"), 0600))

	addresses, err := ks.ListKeyAddresses()
	assert.Nil(t, err)
	assert.Len(t, addresses, 1)
}

func TestDecryptPBKDF2(t *testing.T) {
	assert := assert.New(t)

	privKey, _, err := crypto.TEST_GenerateKeyPairWithSeed("pbkdf2")
	require.Nil(t, err)
	salt := []byte("0123456789abcdef0123456789abcdef")
	iv := []byte("fedcba9876543210")
	derivedKey := pbkdf2.Key([]byte("secret"), salt, 16, 32, sha256.New)
	cipherText, err := aesCTRXOR(derivedKey[:16], privKey.ToBytes(), iv)
	require.Nil(t, err)

	keyjson, err := json.Marshal(encryptedKeyJSON{
		Crypto: cryptoJSON{
			Cipher:       "aes-128-ctr",
			CipherText:   hex.EncodeToString(cipherText),
			CipherParams: cipherparamsJSON{IV: hex.EncodeToString(iv)},
			KDF:          "pbkdf2",
			KDFParams: map[string]interface{}{
				"c":     16,
				"dklen": 32,
				"prf":   "hmac-sha256",
				"salt":  hex.EncodeToString(salt),
			},
			MAC: hex.EncodeToString(crypto.Keccak256(derivedKey[16:32], cipherText)),
		},
		Id:      "3198bc9c-6672-5ab3-d995-4942343ae5b6",
		Version: version,
	})
	require.Nil(t, err)

	key, err := DecryptKey(keyjson, "secret")
	require.Nil(t, err)
	assert.Equal(privKey.Address(), key.Address)
	assert.Equal("3198bc9c-6672-5ab3-d995-4942343ae5b6", key.Id.String())

	_, err = DecryptKey(keyjson, "wrong")
	assert.Equal(ErrDecrypt, err)
}
