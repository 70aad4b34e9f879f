package veilcrypto

import (
	"crypto/ed25519"
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"github.com/veil-project/veil/internal/primitives"
)

// ErrBadSignature is returned by every Verify* function on failure. Spec §7
// treats signature failure uniformly: drop the payload, and in
// signed-required namespaces purge the object_root from cache/inbox.
var ErrBadSignature = errors.New("veilcrypto: bad signature")

// SigningMessage builds the exact bytes every signature in veil covers:
// canonical_header_bytes ‖ H(ciphertext), per §3/§4.3.
func SigningMessage(headerBytes []byte, ciphertext []byte) []byte {
	ctHash := primitives.H(ciphertext)
	msg := make([]byte, 0, len(headerBytes)+primitives.HashSize)
	msg = append(msg, headerBytes...)
	msg = append(msg, ctHash[:]...)
	return msg
}

// SignEd25519 signs msg with the given Ed25519 private key. Used for
// identity keys and ContactBundle / ACK signing.
func SignEd25519(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// VerifyEd25519 verifies an Ed25519 signature over msg.
func VerifyEd25519(pub ed25519.PublicKey, msg, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return ErrBadSignature
	}
	if !ed25519.Verify(pub, msg, sig) {
		return ErrBadSignature
	}
	return nil
}

// SignSchnorrSecp256k1 signs the BLAKE3 digest of msg with a secp256k1
// private key using decred's schnorr package (EC-Schnorr-DCRv0, not
// BIP-340), the alternate publisher key scheme of §4.3.
func SignSchnorrSecp256k1(priv *secp256k1.PrivateKey, msg []byte) ([]byte, error) {
	digest := primitives.H(msg)
	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// VerifySchnorrSecp256k1 verifies a Schnorr signature over the BLAKE3 digest
// of msg.
func VerifySchnorrSecp256k1(pub *secp256k1.PublicKey, msg, sigBytes []byte) error {
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return ErrBadSignature
	}
	digest := primitives.H(msg)
	if !sig.Verify(digest[:], pub) {
		return ErrBadSignature
	}
	return nil
}
