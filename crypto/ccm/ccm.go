// Package ccm implements AES-128-CCM as specified by NIST 800-38C / RFC 3610,
// fixed to the parameters this protocol uses: a 13-byte nonce and a 4-byte
// authentication tag. The standard library's crypto/cipher only ships
// AES-GCM; CCM has no stdlib equivalent, so the CBC-MAC-then-CTR construction
// is implemented directly here.
package ccm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

const (
	// KeySize is the AES-128 key length in bytes.
	KeySize = 16
	// NonceSize is the CCM nonce length this protocol uses.
	NonceSize = 13
	// TagSize is the CCM authentication tag length this protocol uses.
	TagSize = 4

	blockSize = 16
	lenSize   = 15 - NonceSize // L, the length-field size implied by a 13-byte nonce
)

var (
	ErrInvalidKeySize   = errors.New("ccm: invalid key size, must be 16 bytes")
	ErrInvalidNonceSize = errors.New("ccm: invalid nonce size, must be 13 bytes")
	ErrPlaintextTooLong = errors.New("ccm: plaintext too long")
	ErrCiphertextShort  = errors.New("ccm: ciphertext shorter than tag size")
	ErrAuthFailed       = errors.New("ccm: message authentication failed")
)

// CCM is an AES-128-CCM instance bound to a single key.
type CCM struct {
	block cipher.Block
}

// New constructs a CCM cipher from a 16-byte key.
func New(key [KeySize]byte) (*CCM, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return &CCM{block: block}, nil
}

// Seal encrypts and authenticates plaintext under nonce, returning
// ciphertext||tag. aad may be nil; this protocol never sends associated data.
func (c *CCM) Seal(nonce [NonceSize]byte, plaintext, aad []byte) ([]byte, error) {
	maxLen := (1 << (8 * lenSize)) - 1
	if len(plaintext) > maxLen {
		return nil, ErrPlaintextTooLong
	}

	tag := c.computeTag(nonce, plaintext, aad)

	out := make([]byte, len(plaintext)+TagSize)
	s0 := c.keystreamBlock(nonce, 0)
	for i := 0; i < TagSize; i++ {
		out[len(plaintext)+i] = tag[i] ^ s0[i]
	}
	c.ctr(nonce, out[:len(plaintext)], plaintext)
	return out, nil
}

// Open verifies and decrypts ciphertext||tag produced by Seal under nonce.
func (c *CCM) Open(nonce [NonceSize]byte, ciphertext, aad []byte) ([]byte, error) {
	if len(ciphertext) < TagSize {
		return nil, ErrCiphertextShort
	}

	body := ciphertext[:len(ciphertext)-TagSize]
	wantTag := ciphertext[len(ciphertext)-TagSize:]

	s0 := c.keystreamBlock(nonce, 0)
	recvTag := make([]byte, TagSize)
	for i := 0; i < TagSize; i++ {
		recvTag[i] = wantTag[i] ^ s0[i]
	}

	plaintext := make([]byte, len(body))
	c.ctr(nonce, plaintext, body)

	expectTag := c.computeTag(nonce, plaintext, aad)
	if subtle.ConstantTimeCompare(recvTag, expectTag) != 1 {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// computeTag runs CBC-MAC over B0 || AAD-blocks || plaintext-blocks and
// returns the first TagSize bytes, per RFC 3610 section 2.2.
func (c *CCM) computeTag(nonce [NonceSize]byte, plaintext, aad []byte) []byte {
	var b0 [blockSize]byte
	flags := byte(0)
	if len(aad) > 0 {
		flags |= 1 << 6
	}
	flags |= byte((TagSize-2)/2) << 3
	flags |= byte(lenSize - 1)
	b0[0] = flags
	copy(b0[1:1+NonceSize], nonce[:])
	putLength(b0[1+NonceSize:], len(plaintext))

	mac := make([]byte, blockSize)
	c.block.Encrypt(mac, b0[:])

	if len(aad) > 0 {
		var hdr [blockSize]byte
		var headerLen int
		aadLen := len(aad)
		switch {
		case aadLen < (1<<16)-(1<<8):
			binary.BigEndian.PutUint16(hdr[0:2], uint16(aadLen))
			headerLen = 2
		case uint64(aadLen) < (1 << 32):
			hdr[0], hdr[1] = 0xFF, 0xFE
			binary.BigEndian.PutUint32(hdr[2:6], uint32(aadLen))
			headerLen = 6
		default:
			hdr[0], hdr[1] = 0xFF, 0xFF
			binary.BigEndian.PutUint64(hdr[2:10], uint64(aadLen))
			headerLen = 10
		}
		firstChunk := blockSize - headerLen
		if firstChunk > len(aad) {
			firstChunk = len(aad)
		}
		copy(hdr[headerLen:], aad[:firstChunk])
		xorBlock(mac, hdr[:])
		c.block.Encrypt(mac, mac)

		remaining := aad[firstChunk:]
		for len(remaining) > 0 {
			var blk [blockSize]byte
			n := copy(blk[:], remaining)
			remaining = remaining[n:]
			xorBlock(mac, blk[:])
			c.block.Encrypt(mac, mac)
		}
	}

	remaining := plaintext
	for len(remaining) > 0 {
		var blk [blockSize]byte
		n := copy(blk[:], remaining)
		remaining = remaining[n:]
		xorBlock(mac, blk[:])
		c.block.Encrypt(mac, mac)
	}

	return mac[:TagSize]
}

// keystreamBlock returns E(K, A_ctr) for the counter block with the given
// counter value (0 for the tag mask, 1.. for the data keystream).
func (c *CCM) keystreamBlock(nonce [NonceSize]byte, counter uint64) []byte {
	var a [blockSize]byte
	a[0] = byte(lenSize - 1)
	copy(a[1:1+NonceSize], nonce[:])
	putCounter(a[blockSize-lenSize:], counter)

	out := make([]byte, blockSize)
	c.block.Encrypt(out, a[:])
	return out
}

// ctr encrypts/decrypts src into dst with CTR mode starting at counter 1.
func (c *CCM) ctr(nonce [NonceSize]byte, dst, src []byte) {
	var a [blockSize]byte
	a[0] = byte(lenSize - 1)
	copy(a[1:1+NonceSize], nonce[:])
	putCounter(a[blockSize-lenSize:], 1)

	var keystream [blockSize]byte
	for i := 0; i < len(src); i += blockSize {
		c.block.Encrypt(keystream[:], a[:])
		end := i + blockSize
		if end > len(src) {
			end = len(src)
		}
		for j := i; j < end; j++ {
			dst[j] = src[j] ^ keystream[j-i]
		}
		incrementCounter(a[blockSize-lenSize:])
	}
}

func putLength(dst []byte, n int) {
	for i := lenSize - 1; i >= 0; i-- {
		dst[i] = byte(n)
		n >>= 8
	}
}

func putCounter(dst []byte, n uint64) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = byte(n)
		n >>= 8
	}
}

func xorBlock(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

func incrementCounter(ctr []byte) {
	for i := len(ctr) - 1; i >= 0; i-- {
		ctr[i]++
		if ctr[i] != 0 {
			break
		}
	}
}
