package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/asn1"
	"errors"
	"math/big"
)

// rsaKeySizeBits matches the original login handshake's 1024-bit key:
// the client's RSA library (and Mojang's own reference server) hard
// codes a 128-byte ciphertext, so the keypair can't grow without
// breaking the wire format.
const rsaKeySizeBits = 1024

// rsaPublicExponent is the fixed public exponent e=65537, same as the
// original handshake.
const rsaPublicExponent = 65537

var (
	errInvalidPadding = errors.New("palisade: invalid PKCS#1 v1.5 padding")
	errLengthMismatch = errors.New("palisade: ciphertext length mismatch")
)

// oidRSAEncryption is 1.2.840.113549.1.1.1, the rsaEncryption OID used
// in the SubjectPublicKeyInfo algorithm identifier.
var oidRSAEncryption = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}

// RsaKeypair is generated once per server process and shared by every
// connection without synchronization: every field is set once in
// NewRsaKeypair and never mutated again.
type RsaKeypair struct {
	d   *big.Int
	n   *big.Int
	der []byte // cached ASN.1 DER SubjectPublicKeyInfo encoding
}

// NewRsaKeypair generates a fresh 1024-bit RSA keypair and caches its
// ASN.1 DER SubjectPublicKeyInfo encoding.
func NewRsaKeypair() (*RsaKeypair, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeySizeBits)
	if err != nil {
		return nil, err
	}
	if key.E != rsaPublicExponent {
		// rsa.GenerateKey always uses 65537 today; guard against a
		// future stdlib default change silently breaking the wire
		// contract this handshake depends on.
		return nil, errors.New("palisade: unexpected RSA public exponent")
	}

	der, err := marshalSubjectPublicKeyInfo(key.N, int64(key.E))
	if err != nil {
		return nil, err
	}

	return &RsaKeypair{d: key.D, n: key.N, der: der}, nil
}

// ASN1SPKI returns the cached DER-encoded SubjectPublicKeyInfo. Its
// length is what's sent on the wire in EncryptionRequest and hashed in
// the server-ID digest.
func (k *RsaKeypair) ASN1SPKI() []byte { return k.der }

// ASN1SPKILen returns len(ASN1SPKI()).
func (k *RsaKeypair) ASN1SPKILen() int { return len(k.der) }

// Decrypt performs raw RSA decryption (m = c^d mod n) of a ciphertext
// no longer than the key size, then strips PKCS#1 v1.5 type-2 padding.
func (k *RsaKeypair) Decrypt(ciphertext []byte) ([]byte, error) {
	keyLen := (k.n.BitLen() + 7) / 8
	if len(ciphertext) == 0 || len(ciphertext) > keyLen {
		return nil, errLengthMismatch
	}

	c := new(big.Int).SetBytes(ciphertext)
	if c.Cmp(k.n) >= 0 {
		return nil, errLengthMismatch
	}
	m := new(big.Int).Exp(c, k.d, k.n)

	padded := m.Bytes()
	if len(padded) < keyLen {
		// Exp() strips leading zero bytes; restore them so the
		// padding format below sees a fixed keyLen-byte block.
		full := make([]byte, keyLen)
		copy(full[keyLen-len(padded):], padded)
		padded = full
	}

	return unpadPKCS1v15(padded)
}

// unpadPKCS1v15 strips type-2 padding: 0x00, 0x02, >=8 non-zero pad
// bytes, a 0x00 separator, then the payload.
func unpadPKCS1v15(block []byte) ([]byte, error) {
	if len(block) < 11 || block[0] != 0x00 || block[1] != 0x02 {
		return nil, errInvalidPadding
	}

	i := 2
	for i < len(block) && block[i] != 0x00 {
		i++
	}
	if i == len(block) {
		return nil, errInvalidPadding
	}
	if i-2 < 8 {
		return nil, errInvalidPadding
	}
	return block[i+1:], nil
}

// rsaPublicKeyASN1 mirrors the inner RSAPublicKey SEQUENCE { n, e }.
type rsaPublicKeyASN1 struct {
	N *big.Int
	E int64
}

// algorithmIdentifier mirrors AlgorithmIdentifier ::= SEQUENCE {
// algorithm OBJECT IDENTIFIER, parameters ANY DEFINED BY algorithm OPTIONAL }.
type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.RawValue
}

// subjectPublicKeyInfo mirrors SubjectPublicKeyInfo ::= SEQUENCE {
// algorithm AlgorithmIdentifier, subjectPublicKey BIT STRING }.
type subjectPublicKeyInfo struct {
	Algorithm        algorithmIdentifier
	SubjectPublicKey asn1.BitString
}

// marshalSubjectPublicKeyInfo produces the DER encoding sent on the
// wire and hashed into the server-ID digest: an rsaEncryption
// AlgorithmIdentifier with NULL parameters wrapping the DER-encoded
// inner RSAPublicKey SEQUENCE.
func marshalSubjectPublicKeyInfo(n *big.Int, e int64) ([]byte, error) {
	inner, err := asn1.Marshal(rsaPublicKeyASN1{N: n, E: e})
	if err != nil {
		return nil, err
	}

	spki := subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{
			Algorithm:  oidRSAEncryption,
			Parameters: asn1.RawValue{Tag: asn1.TagNull},
		},
		SubjectPublicKey: asn1.BitString{Bytes: inner, BitLength: len(inner) * 8},
	}
	return asn1.Marshal(spki)
}

// parseSubjectPublicKeyInfoForTest re-extracts (n, e) from a DER blob.
// Used only by tests: the §8 invariant 2 property test directly, and
// the client-side encryption helpers of the invariant 1 and login
// scenario tests.
func parseSubjectPublicKeyInfoForTest(der []byte) (*big.Int, int64, error) {
	var spki subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(der, &spki); err != nil {
		return nil, 0, err
	}
	if !spki.Algorithm.Algorithm.Equal(oidRSAEncryption) {
		return nil, 0, errors.New("palisade: unexpected SPKI algorithm OID")
	}
	var inner rsaPublicKeyASN1
	if _, err := asn1.Unmarshal(spki.SubjectPublicKey.Bytes, &inner); err != nil {
		return nil, 0, err
	}
	return inner.N, inner.E, nil
}

// encryptWithSPKIForTest mirrors what a client does with EncryptionRequest:
// parse the DER SPKI and RSA-encrypt a payload with PKCS#1 v1.5. Used
// only by the property test for §8 invariant 1 — production code never
// encrypts, only decrypts.
func encryptWithSPKIForTest(der, payload []byte) ([]byte, error) {
	n, e, err := parseSubjectPublicKeyInfoForTest(der)
	if err != nil {
		return nil, err
	}
	pub := &rsa.PublicKey{N: n, E: int(e)}
	return rsa.EncryptPKCS1v15(rand.Reader, pub, payload)
}
