package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
	"github.com/thetatoken/hubchannel/common/util"
)

var logger = util.GetLoggerForModule("crypto")

// SignatureLength is 64 bytes of [R || S] followed by one byte of V.
const SignatureLength = 64 + 1

// ----------------------------- Keys ----------------------------- //

//
// PublicKey wraps a secp256k1 public key
//
type PublicKey struct {
	pubKey *ecdsa.PublicKey
}

// Address returns the address derived from the public key
func (pk *PublicKey) Address() common.Address {
	if pk.IsEmpty() {
		return common.Address{}
	}
	return ethcrypto.PubkeyToAddress(*pk.pubKey)
}

// IsEmpty indicates whether the public key is empty
func (pk *PublicKey) IsEmpty() bool {
	return pk == nil || pk.pubKey == nil || pk.pubKey.X == nil || pk.pubKey.Y == nil
}

// ToBytes returns the 65 byte uncompressed encoding of the public key
func (pk *PublicKey) ToBytes() common.Bytes {
	if pk.IsEmpty() {
		return nil
	}
	return ethcrypto.FromECDSAPub(pk.pubKey)
}

// PublicKeyFromBytes parses a 65 byte uncompressed public key
func PublicKeyFromBytes(pkBytes []byte) (*PublicKey, error) {
	pke, err := ethcrypto.UnmarshalPubkey(pkBytes)
	if err != nil {
		return nil, err
	}
	return &PublicKey{pubKey: pke}, nil
}

//
// PrivateKey wraps a secp256k1 private key
//
type PrivateKey struct {
	privKey *ecdsa.PrivateKey
}

// PublicKey returns the public key corresponding to the private key
func (sk *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{pubKey: &sk.privKey.PublicKey}
}

// Address is a shortcut for PublicKey().Address()
func (sk *PrivateKey) Address() common.Address {
	return sk.PublicKey().Address()
}

// ToBytes returns the 32 byte big endian scalar
func (sk *PrivateKey) ToBytes() common.Bytes {
	return ethcrypto.FromECDSA(sk.privKey)
}

// Sign signs a 32 byte digest. The signature is in [R || S || V] form with V
// being 27 or 28.
func (sk *PrivateKey) Sign(digest []byte) (*Signature, error) {
	sig, err := ethcrypto.Sign(digest, sk.privKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign")
	}
	sig[64] += 27
	return &Signature{data: sig}, nil
}

// ECDSA exposes the underlying key, e.g. for building chain transactors.
func (sk *PrivateKey) ECDSA() *ecdsa.PrivateKey {
	return sk.privKey
}

// GenerateKeyPair generates a random private/public key pair
func GenerateKeyPair() (*PrivateKey, *PublicKey, error) {
	ske, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, nil, err
	}
	sk := &PrivateKey{privKey: ske}
	return sk, sk.PublicKey(), nil
}

// PrivateKeyFromBytes parses a 32 byte private key
func PrivateKeyFromBytes(skBytes []byte) (*PrivateKey, error) {
	ske, err := ethcrypto.ToECDSA(skBytes)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{privKey: ske}, nil
}

// HexToPrivateKey parses a hex encoded private key, with or without 0x prefix
func HexToPrivateKey(s string) (*PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid hex private key")
	}
	return PrivateKeyFromBytes(b)
}

// ----------------------------- Signature ----------------------------- //

//
// Signature is a 65 byte recoverable secp256k1 signature
//
type Signature struct {
	data common.Bytes
}

// SignatureFromBytes wraps raw signature bytes. Only the length is checked
// here, the recovery id and curve values are checked on recovery.
func SignatureFromBytes(sigBytes []byte) (*Signature, error) {
	if len(sigBytes) != SignatureLength {
		return nil, errors.Wrapf(result.ErrInvalidSignature, "length %d, expected %d", len(sigBytes), SignatureLength)
	}
	return &Signature{data: common.CopyBytes(sigBytes)}, nil
}

// HexToSignature parses a 0x prefixed signature
func HexToSignature(s string) (*Signature, error) {
	var b common.Bytes
	if err := b.UnmarshalText([]byte(s)); err != nil {
		return nil, errors.Wrap(result.ErrInvalidSignature, err.Error())
	}
	return SignatureFromBytes(b)
}

// IsEmpty indicates whether the signature is empty
func (sig *Signature) IsEmpty() bool {
	return sig == nil || len(sig.data) == 0
}

// ToBytes returns a copy of the raw signature
func (sig *Signature) ToBytes() common.Bytes {
	if sig == nil {
		return nil
	}
	return common.CopyBytes(sig.data)
}

// Hex returns the 0x prefixed hex form
func (sig *Signature) Hex() string {
	return sig.ToBytes().String()
}

// MarshalJSON encodes the signature as a hex string
func (sig *Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(sig.ToBytes())
}

// UnmarshalJSON decodes a hex string of exactly SignatureLength bytes.
func (sig *Signature) UnmarshalJSON(data []byte) error {
	var b common.Bytes
	if err := json.Unmarshal(data, &b); err != nil {
		return errors.Wrap(result.ErrInvalidSignature, err.Error())
	}
	parsed, err := SignatureFromBytes(b)
	if err != nil {
		return err
	}
	sig.data = parsed.data
	return nil
}

// ----------------------------- Hashing ----------------------------- //

// Keccak256 calculates and returns the Keccak256 hash of the input data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates and returns the Keccak256 hash of the input data,
// converting it to an internal Hash data structure.
func Keccak256Hash(data ...[]byte) (h common.Hash) {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	d.Sum(h[:0])
	return h
}
