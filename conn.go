package main

import (
	"bytes"
	"compress/zlib"
	"crypto/cipher"
	"io"
)

// Conn wraps one client connection's read/write path: plaintext until
// C2 enables the AES-CFB8 streams, then transparently encrypted; and
// uncompressed until C7 sends SetCompression, then transparently
// zlib-compressed above the configured threshold. It deliberately never
// buffers ahead of what a caller asks for (no bufio.Reader) — ReadVarInt
// needs one byte at a time, and reading byte-by-byte straight off the
// connection guarantees no plaintext bytes are left sitting in a buffer
// across the cipher-enable boundary described in spec.md §5.
type Conn struct {
	rw                   io.ReadWriteCloser
	reader               io.Reader
	writer               io.Writer
	compressionThreshold int // -1 disabled, matches SetCompression's wire value
}

func newConn(rw io.ReadWriteCloser) *Conn {
	return &Conn{rw: rw, reader: rw, writer: rw, compressionThreshold: -1}
}

// ReadByte satisfies io.ByteReader so ReadVarInt can be called
// directly against the connection.
func (c *Conn) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(c.reader, b[:])
	return b[0], err
}

func (c *Conn) Close() error { return c.rw.Close() }

// enableCipher switches both the read and write path onto the AES-CFB8
// streams derived in C2. Called exactly once, synchronously, between
// finishing the EncryptionResponse packet and reading the next byte —
// see the Conn doc comment for why no draining step is needed here.
func (c *Conn) enableCipher(encrypt, decrypt cipher.Stream) {
	c.reader = &cipher.StreamReader{S: decrypt, R: c.rw}
	c.writer = &cipher.StreamWriter{S: encrypt, W: c.rw}
}

// enableCompression turns on the compressed packet framing for every
// subsequent write. The SetCompression packet announcing this must
// already have been sent uncompressed by the caller.
func (c *Conn) enableCompression(threshold int) {
	c.compressionThreshold = threshold
}

// readLoginPacket reads one [Length][ID][Data] frame and splits it
// into its numeric ID and remaining body. Compression framing is not
// applicable during the login phase itself (it is negotiated only at
// the very end, on the way out), so this only ever reads the
// uncompressed shape — matching real client behavior, which never
// compresses inbound login-phase packets.
func (c *Conn) readLoginPacket(maxLen int) (id int, body []byte, err error) {
	length, err := ReadVarInt(c)
	if err != nil {
		return 0, nil, err
	}
	if length < 0 || length > maxLen {
		return 0, nil, errLengthField
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(c.reader, buf); err != nil {
		return 0, nil, err
	}

	r := bytes.NewReader(buf)
	pid, err := ReadVarInt(r)
	if err != nil {
		return 0, nil, err
	}
	rest := make([]byte, r.Len())
	io.ReadFull(r, rest)
	return pid, rest, nil
}

// sendPacket frames and writes one outbound packet, compressing it
// per §4.6 once compression has been enabled.
func (c *Conn) sendPacket(packetID int, body []byte) error {
	if c.compressionThreshold < 0 {
		return WritePacket(c.writer, packetID, body)
	}
	return writeCompressedPacket(c.writer, packetID, body, c.compressionThreshold)
}

// sendPacketUncompressed always writes in the uncompressed shape,
// regardless of negotiated compression — used for SetCompression
// itself, which per §4.6 must be sent before compression takes effect.
func (c *Conn) sendPacketUncompressed(packetID int, body []byte) error {
	return WritePacket(c.writer, packetID, body)
}

// writeCompressedPacket implements the vanilla compressed packet
// format: [PacketLength VarInt][DataLength VarInt][...payload...],
// where DataLength is 0 for an uncompressed payload (below threshold)
// or the uncompressed length of a zlib-compressed payload otherwise.
func writeCompressedPacket(w io.Writer, packetID int, body []byte, threshold int) error {
	inner := new(bytes.Buffer)
	WriteVarInt(inner, packetID)
	inner.Write(body)
	uncompressed := inner.Bytes()

	payload := new(bytes.Buffer)
	if len(uncompressed) >= threshold {
		WriteVarInt(payload, len(uncompressed))
		zw := zlib.NewWriter(payload)
		if _, err := zw.Write(uncompressed); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
	} else {
		WriteVarInt(payload, 0)
		payload.Write(uncompressed)
	}

	if err := WriteVarInt(w, payload.Len()); err != nil {
		return err
	}
	_, err := w.Write(payload.Bytes())
	return err
}
