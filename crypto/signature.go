package crypto

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/thetatoken/hubchannel/common"
	"github.com/thetatoken/hubchannel/common/result"
)

// PersonalMessagePrefix is prepended, followed by the decimal message length,
// to every fingerprint before it is signed.
const PersonalMessagePrefix = "\x19Ethereum Signed Message:\n"

// PersonalMessageHash returns keccak256(prefix || len(msg) || msg).
func PersonalMessageHash(msg []byte) common.Hash {
	prefix := fmt.Sprintf("%s%d", PersonalMessagePrefix, len(msg))
	return Keccak256Hash([]byte(prefix), msg)
}

// SignFingerprint signs a state fingerprint as the owner of key.
func SignFingerprint(fingerprint common.Hash, key *PrivateKey) (*Signature, error) {
	if key == nil {
		return nil, errors.New("no signing identity provided")
	}
	digest := PersonalMessageHash(fingerprint[:])
	return key.Sign(digest[:])
}

// RecoverSigner returns the address that produced sig over fingerprint. It only
// looks at its arguments.
func RecoverSigner(fingerprint common.Hash, sig *Signature) (common.Address, error) {
	if sig.IsEmpty() {
		return common.Address{}, errors.Wrap(result.ErrInvalidSignature, "empty signature")
	}
	raw := sig.ToBytes()
	if len(raw) != SignatureLength {
		return common.Address{}, errors.Wrapf(result.ErrInvalidSignature, "length %d", len(raw))
	}

	v := raw[64]
	if v >= 27 {
		v -= 27
	}
	r := new(big.Int).SetBytes(raw[:32])
	s := new(big.Int).SetBytes(raw[32:64])
	if !ethcrypto.ValidateSignatureValues(v, r, s, true) {
		return common.Address{}, errors.Wrapf(result.ErrInvalidSignature, "invalid v, r, s values (v=%d)", raw[64])
	}
	raw[64] = v

	digest := PersonalMessageHash(fingerprint[:])
	pub, err := ethcrypto.SigToPub(digest[:], raw)
	if err != nil {
		return common.Address{}, errors.Wrap(result.ErrInvalidSignature, err.Error())
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifySigner checks that sig over fingerprint was produced by expected.
// A mismatch is logged and returned as *result.SignatureError.
func VerifySigner(role string, expected common.Address, fingerprint common.Hash, sig *Signature) error {
	recovered, err := RecoverSigner(fingerprint, sig)
	if err != nil {
		return errors.Wrapf(err, "signature of %s", role)
	}
	if recovered != expected {
		logger.WithFields(log.Fields{
			"role":        role,
			"fingerprint": fingerprint.Hex(),
			"expected":    expected.Hex(),
			"recovered":   recovered.Hex(),
		}).Error("Signer mismatch")
		return &result.SignatureError{Role: role, Expected: expected, Recovered: recovered}
	}
	return nil
}
