// internal/cbc/cbc.go
package cbc

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/nvcrypt/internal/fault"
)

// BlockSize is the AES block size. Every buffer handed to Encrypt or
// Decrypt must be a positive multiple of it.
const BlockSize = aes.BlockSize

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Key is the 256-bit cipher key.
type Key [KeySize]byte

// IV is the 128-bit initialization vector.
type IV [BlockSize]byte

// Primitive builds the raw block transform for a key.
// aes.NewCipher is the default; a hardware engine plugs in here.
type Primitive func(key []byte) (cipher.Block, error)

// ErrAlignment is wrapped by the LogicFault returned for bad buffer lengths.
var ErrAlignment = errors.New("cbc: length is not a positive multiple of the block size")

// Context binds key, IV and the block primitive.
// It is built once and never mutated afterwards.
type Context struct {
	block cipher.Block
	iv    IV
}

type options struct {
	primitive Primitive
}

// Option configures NewContext.
type Option func(*options)

// WithPrimitive replaces the default software AES transform.
func WithPrimitive(p Primitive) Option {
	return func(o *options) {
		if p != nil {
			o.primitive = p
		}
	}
}

// NewContext constructs the cipher context. A primitive that cannot be
// built, or that does not work on 16-byte blocks, is a hardware fault.
func NewContext(key Key, iv IV, opts ...Option) (*Context, error) {
	o := options{primitive: aes.NewCipher}
	for _, opt := range opts {
		opt(&o)
	}

	block, err := o.primitive(key[:])
	if err != nil {
		return nil, fault.Hardware("cbc: init primitive", err)
	}
	if block == nil {
		return nil, fault.Hardware("cbc: init primitive", errors.New("primitive returned no block"))
	}
	if bs := block.BlockSize(); bs != BlockSize {
		return nil, fault.Hardware(
			"cbc: init primitive",
			fmt.Errorf("block size %d, want %d", bs, BlockSize),
		)
	}

	return &Context{block: block, iv: iv}, nil
}

// IV returns the context's initialization vector.
func (c *Context) IV() IV { return c.iv }

// WithIV returns a sibling context sharing key and primitive with a different IV.
func (c *Context) WithIV(iv IV) *Context {
	return &Context{block: c.block, iv: iv}
}

// Encrypt returns CBC(key, iv, plaintext). The input is left untouched.
func Encrypt(ctx *Context, plaintext []byte) ([]byte, error) {
	if err := checkLength("cbc: encrypt", ctx, plaintext); err != nil {
		return nil, err
	}

	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(ctx.block, ctx.iv[:]).CryptBlocks(out, plaintext)
	return out, nil
}

// Decrypt inverts Encrypt for the same context.
func Decrypt(ctx *Context, ciphertext []byte) ([]byte, error) {
	if err := checkLength("cbc: decrypt", ctx, ciphertext); err != nil {
		return nil, err
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(ctx.block, ctx.iv[:]).CryptBlocks(out, ciphertext)
	return out, nil
}

// checkLength runs before the primitive is touched.
func checkLength(op string, ctx *Context, buf []byte) error {
	if ctx == nil || ctx.block == nil {
		return fault.Hardware(op, errors.New("cipher context not initialized"))
	}
	if len(buf) == 0 || len(buf)%BlockSize != 0 {
		return fault.Logic(op, fmt.Errorf("%w (got %d)", ErrAlignment, len(buf)))
	}
	return nil
}

// ParseKey decodes a 64 hex digit key. Spaces, colons and a 0x prefix are ignored.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := decodeHex(s)
	if err != nil {
		return k, fmt.Errorf("cbc: key: %w", err)
	}
	if len(b) != KeySize {
		return k, fmt.Errorf("cbc: key must be %d bytes, got %d", KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// ParseIV decodes a 32 hex digit IV.
func ParseIV(s string) (IV, error) {
	var iv IV
	b, err := decodeHex(s)
	if err != nil {
		return iv, fmt.Errorf("cbc: iv: %w", err)
	}
	if len(b) != BlockSize {
		return iv, fmt.Errorf("cbc: iv must be %d bytes, got %d", BlockSize, len(b))
	}
	copy(iv[:], b)
	return iv, nil
}

// CleanHex strips the separators ParseKey and ParseIV accept.
func CleanHex(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strings.NewReplacer(" ", "", ":", "", "\t", "", "\n", "").Replace(s)
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(CleanHex(s))
}
