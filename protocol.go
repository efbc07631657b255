// Package main implements the login-phase packet codec: VarInt and
// length-prefixed string primitives, and the five login-phase wire
// messages built on top of them.
package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// Login-phase packet IDs (client/server bound, per direction).
const (
	PID_SB_LoginStart         = 0x00 // Client -> Server
	PID_SB_EncryptionResponse = 0x01 // Client -> Server
	PID_SB_PluginResponse     = 0x02 // Client -> Server

	PID_CB_Disconnect        = 0x00 // Server -> Client
	PID_CB_EncryptionRequest = 0x01 // Server -> Client
	PID_CB_LoginSuccess      = 0x02 // Server -> Client
	PID_CB_SetCompression    = 0x03 // Server -> Client
	PID_CB_PluginRequest     = 0x04 // Server -> Client
)

var (
	errVarIntTooBig  = errors.New("palisade: varint is too big")
	errStringTooLong = errors.New("palisade: string exceeds protocol limit")
	errLengthField   = errors.New("palisade: length-prefixed field out of bounds")
)

// ReadVarInt reads a variable-length integer from the reader.
// VarInt is a Minecraft protocol primitive that uses 1-5 bytes and is
// always based on a 32-bit value, so the accumulated result is built
// and sign-extended through int32 — a negative value (e.g. the -1
// SetCompression "disabled" marker) round-trips as five bytes, not as
// an unterminated shift.
func ReadVarInt(r io.ByteReader) (int, error) {
	var numRead int
	var result int32
	for {
		read, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value := int32(read & 0x7F)
		result |= value << (7 * numRead)

		numRead++
		if numRead > 5 {
			return 0, errVarIntTooBig
		}

		if (read & 0x80) == 0 {
			break
		}
	}
	return int(result), nil
}

// WriteVarInt writes a variable-length integer to the writer. value is
// truncated to 32 bits and shifted as unsigned so negative inputs
// terminate after five bytes instead of sign-extending forever under
// Go's arithmetic right shift.
func WriteVarInt(w io.Writer, value int) error {
	uval := uint32(int32(value))
	for {
		temp := byte(uval & 0x7F)
		uval >>= 7
		if uval != 0 {
			temp |= 0x80
		}
		if _, err := w.Write([]byte{temp}); err != nil {
			return err
		}
		if uval == 0 {
			break
		}
	}
	return nil
}

// WriteString writes a string in Minecraft protocol format: [VarInt Length][UTF-8 Bytes]
func WriteString(w io.Writer, s string) error {
	b := []byte(s)
	if err := WriteVarInt(w, len(b)); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadString reads a length-prefixed UTF-8 string, rejecting anything
// beyond the protocol's worst-case 32767-character, 4-bytes/char bound.
func ReadString(r io.Reader) (string, error) {
	var br io.ByteReader
	if b, ok := r.(io.ByteReader); ok {
		br = b
	} else {
		// Fallback adapter (slower but works for simple readers)
		br = &byteReaderAdapter{r: r, buf: make([]byte, 1)}
	}

	length, err := ReadVarInt(br)
	if err != nil {
		return "", err
	}
	if length < 0 || length > 32767*4 {
		return "", errStringTooLong
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}

// ReadBoundedBytes reads a VarInt length followed by that many raw
// bytes, rejecting lengths outside [0, max].
func ReadBoundedBytes(r io.Reader, max int) ([]byte, error) {
	var br io.ByteReader
	if b, ok := r.(io.ByteReader); ok {
		br = b
	} else {
		br = &byteReaderAdapter{r: r, buf: make([]byte, 1)}
	}

	length, err := ReadVarInt(br)
	if err != nil {
		return nil, err
	}
	if length < 0 || length > max {
		return nil, errLengthField
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// byteReaderAdapter adapts io.Reader to io.ByteReader interface
type byteReaderAdapter struct {
	r   io.Reader
	buf []byte
}

func (b *byteReaderAdapter) ReadByte() (byte, error) {
	_, err := b.r.Read(b.buf)
	return b.buf[0], err
}

func WriteBool(w io.Writer, v bool) error {
	var b byte
	if v {
		b = 0x01
	}
	_, err := w.Write([]byte{b})
	return err
}

func ReadBool(r io.ByteReader) (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

func WriteInt32(w io.Writer, v int32) error { return binary.Write(w, binary.BigEndian, v) }

// WritePacket assembles a [Length][ID][Data] packet.
func WritePacket(w io.Writer, packetID int, data []byte) error {
	packetBuffer := new(bytes.Buffer)

	// Write the packet ID.
	WriteVarInt(packetBuffer, packetID)
	// Write the data.
	packetBuffer.Write(data)

	// Compute the total length.
	length := packetBuffer.Len()

	// Send the length.
	if err := WriteVarInt(w, length); err != nil {
		return err
	}

	// Send the packet body itself.
	if _, err := w.Write(packetBuffer.Bytes()); err != nil {
		return err
	}

	return nil
}

// --- C5: login-phase message adapter ---
//
// These map the primitives above onto the five login-phase wire
// messages from spec.md §4.5. Inbound helpers enforce the length
// bounds called out there; outbound helpers only build packet bodies,
// leaving writing/flushing to the caller.

// maxCipherBlobLen bounds the two RSA ciphertext length fields carried
// by EncryptionResponse: a 1024-bit key never produces ciphertext
// longer than 128 bytes, so anything claiming more is malformed.
const maxCipherBlobLen = 128

type loginStartPacket struct {
	Username string
}

func readLoginStart(body []byte) (loginStartPacket, error) {
	r := bytes.NewReader(body)
	username, err := ReadString(r)
	if err != nil {
		return loginStartPacket{}, err
	}
	if len(username) < 1 || len(username) > 16 {
		return loginStartPacket{}, errors.New("palisade: username length out of range")
	}
	return loginStartPacket{Username: username}, nil
}

type encryptionResponsePacket struct {
	EncryptedSharedSecret []byte
	EncryptedVerifyToken  []byte
}

func readEncryptionResponse(body []byte) (encryptionResponsePacket, error) {
	r := bytes.NewReader(body)
	secret, err := ReadBoundedBytes(r, maxCipherBlobLen)
	if err != nil {
		return encryptionResponsePacket{}, err
	}
	token, err := ReadBoundedBytes(r, maxCipherBlobLen)
	if err != nil {
		return encryptionResponsePacket{}, err
	}
	return encryptionResponsePacket{EncryptedSharedSecret: secret, EncryptedVerifyToken: token}, nil
}

type pluginResponsePacket struct {
	MessageID int32
	Success   bool
	Data      []byte
}

func readPluginResponse(body []byte) (pluginResponsePacket, error) {
	r := bytes.NewReader(body)
	id, err := ReadVarInt(r)
	if err != nil {
		return pluginResponsePacket{}, err
	}
	ok, err := ReadBool(r)
	if err != nil {
		return pluginResponsePacket{}, err
	}
	rest := make([]byte, r.Len())
	io.ReadFull(r, rest)
	return pluginResponsePacket{MessageID: int32(id), Success: ok, Data: rest}, nil
}

// buildDisconnect renders the 0x00 login Disconnect packet body.
func buildDisconnect(jsonChat string) []byte {
	buf := new(bytes.Buffer)
	WriteString(buf, jsonChat)
	return buf.Bytes()
}

// buildEncryptionRequest renders the 0x01 EncryptionRequest body: an
// empty server-ID string, the cached ASN.1 DER public key, and the
// per-session verify token.
func buildEncryptionRequest(derPublicKey []byte, verifyToken [4]byte) []byte {
	buf := new(bytes.Buffer)
	WriteString(buf, "")
	WriteVarInt(buf, len(derPublicKey))
	buf.Write(derPublicKey)
	WriteVarInt(buf, len(verifyToken))
	buf.Write(verifyToken[:])
	return buf.Bytes()
}

// buildLoginSuccess renders the 0x02 LoginSuccess body: 16 raw UUID
// bytes followed by the canonical username.
func buildLoginSuccess(uuid [16]byte, username string) []byte {
	buf := new(bytes.Buffer)
	buf.Write(uuid[:])
	WriteString(buf, username)
	return buf.Bytes()
}

// buildSetCompression renders the 0x03 SetCompression body.
// threshold == -1 disables compression.
func buildSetCompression(threshold int) []byte {
	buf := new(bytes.Buffer)
	WriteVarInt(buf, threshold)
	return buf.Bytes()
}

// buildPluginRequest renders the 0x04 PluginRequest body.
func buildPluginRequest(messageID int32, channel string, data []byte) []byte {
	buf := new(bytes.Buffer)
	WriteVarInt(buf, int(messageID))
	WriteString(buf, channel)
	buf.Write(data)
	return buf.Bytes()
}
