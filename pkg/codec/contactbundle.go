package codec

import (
	"encoding/base64"
)

// ContactBundleVersion1 is the only schema version this codec emits or
// accepts.
const ContactBundleVersion1 uint16 = 1

// ContactBundle is the self-describing, signed record participants exchange
// out-of-band (QR code, URL) to bootstrap a connection, per §6.
type ContactBundle struct {
	_         struct{} `cbor:",toarray"`
	Version   uint16
	PubKey    []byte
	QUICCert  []byte
	Endpoints []string
	CreatedAt uint32
	Signature []byte // covers the encoding of every field above
}

// signedBytes returns the canonical encoding of every field the signature
// covers — all of ContactBundle except Signature itself.
func (c *ContactBundle) signedBytes() ([]byte, error) {
	cp := *c
	cp.Signature = nil
	return cp.Encode()
}

// Encode serializes c to canonical CBOR, Signature included as-is.
func (c *ContactBundle) Encode() ([]byte, error) {
	b, err := encMode.Marshal(c)
	if err != nil {
		return nil, newErr(InvalidFormat, err.Error())
	}
	return b, nil
}

// SignedBytes exposes the bytes a caller must sign/verify against.
func (c *ContactBundle) SignedBytes() ([]byte, error) { return c.signedBytes() }

// DecodeContactBundle parses and structurally validates b into a
// ContactBundle. Signature verification is the caller's responsibility
// (pkg/veilcrypto) since it requires choosing Ed25519 vs. Schnorr.
func DecodeContactBundle(b []byte) (*ContactBundle, error) {
	var c ContactBundle
	if err := decMode.Unmarshal(b, &c); err != nil {
		return nil, wrapDecodeErr(err)
	}
	if c.Version != ContactBundleVersion1 {
		return nil, newErr(VersionMismatch, "unsupported ContactBundle version")
	}
	if len(c.PubKey) == 0 {
		return nil, newErr(FieldOutOfRange, "contact bundle missing pubkey")
	}
	if len(c.Signature) != SignatureSize {
		return nil, newErr(FieldOutOfRange, "contact bundle has malformed signature")
	}
	return &c, nil
}

// ToURLSafeString renders c as a URL-safe base64 string, suitable for QR
// encoding or pasting into a chat message, per §6.
func (c *ContactBundle) ToURLSafeString() (string, error) {
	b, err := c.Encode()
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ContactBundleFromURLSafeString parses the output of ToURLSafeString.
func ContactBundleFromURLSafeString(s string) (*ContactBundle, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, newErr(InvalidFormat, err.Error())
	}
	return DecodeContactBundle(b)
}
