package main

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
)

// reverseSecretBytes reverses a 16-byte shared secret once. RSA
// decryption (see rsakeys.go) interprets the payload most-significant-
// byte-first, but the wire convention for the shared secret is least-
// significant-byte-first, so every consumer — C2 and C3 alike — must
// see the same reversed 16 bytes. Encapsulating the reversal here means
// callers only ever see the canonical wire-order secret; see
// DESIGN.md's note on this.
func reverseSecretBytes(secret [16]byte) [16]byte {
	var out [16]byte
	for i := range secret {
		out[i] = secret[15-i]
	}
	return out
}

// serverIDDigest computes SHA-1("" || sharedSecret || asn1SPKI) and
// renders it with Minecraft's signed-hex encoding (§4.3). The empty
// string prefix is the legacy "server ID" slot in the original
// client/server handshake, always blank for online-mode servers.
func serverIDDigest(sharedSecret, asn1SPKI []byte) string {
	h := sha1.New()
	h.Write(nil) // empty string prefix, explicit for readers
	h.Write(sharedSecret)
	h.Write(asn1SPKI)
	return minecraftSignedHex(h.Sum(nil))
}

// minecraftSignedHex renders a SHA-1 digest as Minecraft's signed hex
// string: interpret the digest as a two's-complement big-endian
// integer, negate and prefix '-' if the high bit is set, then emit
// lowercase hex with leading zeros stripped (but keep a single '0' for
// the zero value).
func minecraftSignedHex(digest []byte) string {
	negative := len(digest) > 0 && digest[0]&0x80 != 0
	if negative {
		digest = twosComplementNegate(digest)
	}

	h := strings.TrimLeft(hex.EncodeToString(digest), "0")
	if h == "" {
		h = "0"
	}
	if negative {
		h = "-" + h
	}
	return h
}

// parseMinecraftSignedHex inverts minecraftSignedHex for a digest of
// the given byte length, recovering the original SHA-1 output. Used
// only by the bijection property test (§8 invariant 3); production
// code never needs to parse its own server-ID string back.
func parseMinecraftSignedHex(s string, digestLen int) ([]byte, error) {
	negative := strings.HasPrefix(s, "-")
	if negative {
		s = s[1:]
	}
	if len(s) > digestLen*2 {
		return nil, errors.New("palisade: signed-hex string longer than digest")
	}
	padded := strings.Repeat("0", digestLen*2-len(s)) + s
	digest, err := hex.DecodeString(padded)
	if err != nil {
		return nil, err
	}
	if negative {
		digest = twosComplementNegate(digest)
	}
	return digest, nil
}

// twosComplementNegate negates a big-endian byte slice in place
// semantics (returns a new slice): invert every bit, then add one with
// carry propagating from the least significant byte.
func twosComplementNegate(b []byte) []byte {
	out := make([]byte, len(b))
	carry := true
	for i := len(b) - 1; i >= 0; i-- {
		v := ^b[i]
		if carry {
			v++
			carry = v == 0
		}
		out[i] = v
	}
	return out
}
