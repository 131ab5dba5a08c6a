package crypto

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

//
// ----------------------------- APIs ONLY for TESTs ----------------------------- //
//
// WARNING: The following APIs are intended only for unit test case for better repeatibility.
//          They should NOT be used in the production code.

// TEST_GenerateKeyPairWithSeed generates a private/public key pair derived from the given seed string
func TEST_GenerateKeyPairWithSeed(seed string) (*PrivateKey, *PublicKey, error) {
	d := Keccak256([]byte(seed))
	ske, err := ethcrypto.ToECDSA(d)
	if err != nil {
		return nil, nil, err
	}
	sk := &PrivateKey{privKey: ske}
	return sk, sk.PublicKey(), nil
}
