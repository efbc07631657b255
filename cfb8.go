package main

import "crypto/cipher"

// AES-CFB8 is not provided by crypto/cipher (which only implements
// full block-width CFB). The corpus's own Minecraft-protocol clients
// hand-roll it the same way — gomcbot ships a dedicated CFB8 package,
// and GoMCProxy wires an identical construction into cipher.Stream so
// it composes with cipher.StreamReader/StreamWriter like any stdlib
// stream cipher. This file follows that shape.

type cfb8Encrypter struct {
	block cipher.Block
	iv    []byte
}

type cfb8Decrypter struct {
	block cipher.Block
	iv    []byte
}

// newCFB8Streams derives the encrypt and decrypt cipher.Stream pair
// C2 needs from a 16-byte shared secret: both are keyed and
// IV-initialized with the same secret (key == IV), as the protocol
// requires.
func newCFB8Streams(block cipher.Block, sharedSecret []byte) (encrypt, decrypt cipher.Stream) {
	iv := append([]byte(nil), sharedSecret...)
	return &cfb8Encrypter{block: block, iv: append([]byte(nil), iv...)},
		&cfb8Decrypter{block: block, iv: append([]byte(nil), iv...)}
}

// XORKeyStream encrypts one byte of feedback state at a time: CFB8
// never needs block-boundary alignment, so src/dst may be any length,
// including a single byte per call.
func (c *cfb8Encrypter) XORKeyStream(dst, src []byte) {
	blockSize := c.block.BlockSize()
	tmp := make([]byte, blockSize)
	for i := range src {
		c.block.Encrypt(tmp, c.iv)
		ct := src[i] ^ tmp[0]
		dst[i] = ct

		copy(c.iv, c.iv[1:])
		c.iv[blockSize-1] = ct
	}
}

func (c *cfb8Decrypter) XORKeyStream(dst, src []byte) {
	blockSize := c.block.BlockSize()
	tmp := make([]byte, blockSize)
	for i := range src {
		c.block.Encrypt(tmp, c.iv)
		ct := src[i]
		pt := ct ^ tmp[0]
		dst[i] = pt

		copy(c.iv, c.iv[1:])
		c.iv[blockSize-1] = ct
	}
}
