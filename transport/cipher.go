// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha1"

	"github.com/pkg/errors"
	"github.com/tjfoc/gmsm/sm4"
	"golang.org/x/crypto/blowfish"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/salsa20"
)

// saltPrompeg is the fixed pbkdf2 salt: a constant project-name salt
// rather than a per-session random one.
const saltPrompeg = "prompeg"

// DeriveKey expands a passphrase into a 32-byte key: pbkdf2 over SHA-1
// with a fixed salt and 4096 iterations.
func DeriveKey(passphrase string) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(saltPrompeg), 4096, 32, sha1.New)
}

// Cipher encrypts and decrypts individual UDP datagrams, appending the
// result to a caller-supplied destination slice. Unlike
// a stream cipher wrapped around a reliable byte pipe, every datagram
// carries its own nonce/IV, since UDP delivers out of order and drops
// silently.
type Cipher interface {
	// Seal appends the encrypted form of plaintext (plus any nonce/IV
	// prefix the method needs) to dst and returns the extended slice.
	Seal(dst, plaintext []byte) []byte
	// Open decrypts ciphertext (as produced by Seal) appending the
	// recovered plaintext to dst.
	Open(dst, ciphertext []byte) ([]byte, error)
}

// cipherMethod is a lookup table entry: a required key size and a
// constructor, built against concrete standalone cipher packages rather
// than a shared BlockCrypt abstraction.
type cipherMethod struct {
	keySize int
	build   func(key []byte) (Cipher, error)
}

var cipherMethods = map[string]cipherMethod{
	"none":     {0, func(key []byte) (Cipher, error) { return noneCipher{}, nil }},
	"xor":      {0, func(key []byte) (Cipher, error) { return newXORCipher(key), nil }},
	"aes-gcm":  {32, func(key []byte) (Cipher, error) { return newAEADCipher(key) }},
	"sm4-ctr":  {16, newSM4Cipher},
	"blowfish": {0, newBlowfishCipher},
	"salsa20":  {32, newSalsa20Cipher},
}

// SelectCipher translates a human readable cipher name into a Cipher,
// falling back to aes-gcm on construction failure or an unknown name,
// and reporting the effective name actually selected.
func SelectCipher(method string, key []byte) (Cipher, string) {
	if m, ok := cipherMethods[method]; ok {
		k := key
		if m.keySize > 0 && len(k) >= m.keySize {
			k = k[:m.keySize]
		}
		c, err := m.build(k)
		if err == nil {
			return c, method
		}
	}
	c, err := newAEADCipher(key)
	if err != nil {
		return noneCipher{}, "none"
	}
	return c, "aes-gcm"
}

type noneCipher struct{}

func (noneCipher) Seal(dst, plaintext []byte) []byte { return append(dst, plaintext...) }
func (noneCipher) Open(dst, ciphertext []byte) ([]byte, error) {
	return append(dst, ciphertext...), nil
}

// xorCipher XORs against a repeating key: an obfuscation-only cipher
// with no confidentiality guarantees, just a cheap scrambler with no
// nonce overhead.
type xorCipher struct{ key []byte }

func newXORCipher(key []byte) Cipher {
	if len(key) == 0 {
		key = []byte{0}
	}
	return xorCipher{key: key}
}

func (c xorCipher) Seal(dst, plaintext []byte) []byte {
	out := make([]byte, len(plaintext))
	for i, b := range plaintext {
		out[i] = b ^ c.key[i%len(c.key)]
	}
	return append(dst, out...)
}

func (c xorCipher) Open(dst, ciphertext []byte) ([]byte, error) {
	return c.Seal(dst, ciphertext), nil
}

// aeadCipher wraps AES-GCM, prefixing each sealed datagram with a fresh
// random nonce.
type aeadCipher struct{ aead cipher.AEAD }

func newAEADCipher(key []byte) (Cipher, error) {
	block, err := aes.NewCipher(pad(key, 32))
	if err != nil {
		return nil, errors.Wrap(err, "transport: aes-gcm")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "transport: aes-gcm")
	}
	return aeadCipher{aead: aead}, nil
}

func (c aeadCipher) Seal(dst, plaintext []byte) []byte {
	nonce := make([]byte, c.aead.NonceSize())
	rand.Read(nonce)
	dst = append(dst, nonce...)
	return c.aead.Seal(dst, nonce, plaintext, nil)
}

func (c aeadCipher) Open(dst, ciphertext []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, errors.New("transport: ciphertext shorter than nonce")
	}
	nonce, body := ciphertext[:n], ciphertext[n:]
	out, err := c.aead.Open(dst, nonce, body, nil)
	if err != nil {
		return nil, errors.Wrap(err, "transport: aes-gcm open")
	}
	return out, nil
}

// ctrCipher wraps a block cipher in CTR mode with a random per-packet
// IV, used for sm4 and blowfish where no AEAD mode is available from
// the underlying library.
type ctrCipher struct {
	block     cipher.Block
	blockSize int
}

func newSM4Cipher(key []byte) (Cipher, error) {
	block, err := sm4.NewCipher(pad(key, 16))
	if err != nil {
		return nil, errors.Wrap(err, "transport: sm4")
	}
	return ctrCipher{block: block, blockSize: block.BlockSize()}, nil
}

func newBlowfishCipher(key []byte) (Cipher, error) {
	block, err := blowfish.NewCipher(pad(key, 16))
	if err != nil {
		return nil, errors.Wrap(err, "transport: blowfish")
	}
	return ctrCipher{block: block, blockSize: block.BlockSize()}, nil
}

func (c ctrCipher) Seal(dst, plaintext []byte) []byte {
	iv := make([]byte, c.blockSize)
	rand.Read(iv)
	stream := cipher.NewCTR(c.block, iv)
	out := make([]byte, len(plaintext))
	stream.XORKeyStream(out, plaintext)
	dst = append(dst, iv...)
	return append(dst, out...)
}

func (c ctrCipher) Open(dst, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.blockSize {
		return nil, errors.New("transport: ciphertext shorter than IV")
	}
	iv, body := ciphertext[:c.blockSize], ciphertext[c.blockSize:]
	stream := cipher.NewCTR(c.block, iv)
	out := make([]byte, len(body))
	stream.XORKeyStream(out, body)
	return append(dst, out...), nil
}

// salsa20Cipher prefixes each datagram with a fresh 8-byte nonce, the
// form salsa20.XORKeyStream requires.
type salsa20Cipher struct{ key [32]byte }

func newSalsa20Cipher(key []byte) (Cipher, error) {
	var k [32]byte
	copy(k[:], pad(key, 32))
	return salsa20Cipher{key: k}, nil
}

func (c salsa20Cipher) Seal(dst, plaintext []byte) []byte {
	var nonce [8]byte
	rand.Read(nonce[:])
	out := make([]byte, len(plaintext))
	salsa20.XORKeyStream(out, plaintext, nonce[:], &c.key)
	dst = append(dst, nonce[:]...)
	return append(dst, out...)
}

func (c salsa20Cipher) Open(dst, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 8 {
		return nil, errors.New("transport: ciphertext shorter than nonce")
	}
	nonce, body := ciphertext[:8], ciphertext[8:]
	out := make([]byte, len(body))
	salsa20.XORKeyStream(out, body, nonce, &c.key)
	return append(dst, out...), nil
}

// pad right-pads (with zero bytes) or truncates key to exactly n bytes.
func pad(key []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, key)
	return out
}
