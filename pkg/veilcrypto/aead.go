// Package veilcrypto implements the AEAD and signature primitives of
// §4.3: XChaCha20-Poly1305 sealing bound to tag‖namespace‖epoch, and
// Ed25519 / secp256k1-Schnorr signatures over canonical_header‖H(ciphertext).
//
// © 2025 veil authors. MIT License.
package veilcrypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/veil-project/veil/internal/primitives"
)

// KeySize is the XChaCha20-Poly1305 symmetric key width.
const KeySize = chacha20poly1305.KeySize

// NonceSize is the XChaCha20-Poly1305 (extended) nonce width, matching
// codec.NonceSize.
const NonceSize = chacha20poly1305.NonceSizeX

// ErrAead is returned for any seal/open failure: wrong key, corrupted
// ciphertext, or additional-data mismatch. Spec §7 treats all of these
// identically — drop the payload.
var ErrAead = errors.New("veilcrypto: aead operation failed")

// AdditionalData builds AD = tag ‖ u16(namespace) ‖ u32(epoch), the binding
// input required by §4.3. Any alteration of tag, namespace or epoch
// changes AD and makes Open fail — this is the "AEAD binding" invariant of
// §8.
func AdditionalData(tag primitives.Hash, namespace uint16, epoch uint32) []byte {
	ad := make([]byte, 0, primitives.HashSize+2+4)
	ad = append(ad, tag[:]...)
	ad = primitives.PutU16(ad, namespace)
	ad = primitives.PutU32(ad, epoch)
	return ad
}

// NewNonce draws a fresh 24-byte random nonce. Spec §4.3 requires nonces be
// unique per sender within an epoch; 24 random bytes makes collision
// probability negligible without requiring senders to track a counter.
func NewNonce() ([NonceSize]byte, error) {
	var n [NonceSize]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, err
	}
	return n, nil
}

// Seal encrypts plaintext under key, binding it to AD via AdditionalData.
// Callers pass the same nonce they will carry on ObjectV1.Nonce.
func Seal(key []byte, nonce [NonceSize]byte, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, ad), nil
}

// Open decrypts ciphertext under key, verifying it against AD. A non-nil
// error always means ErrAead regardless of the underlying cause, so callers
// cannot distinguish "wrong key" from "tampered AD" from ciphertext length,
// matching the "drop silently" recovery expected for AeadError.
func Open(key []byte, nonce [NonceSize]byte, ciphertext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrAead
	}
	pt, err := aead.Open(nil, nonce[:], ciphertext, ad)
	if err != nil {
		return nil, ErrAead
	}
	return pt, nil
}
