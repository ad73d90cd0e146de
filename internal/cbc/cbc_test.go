package cbc

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"math/bits"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/tamzrod/nvcrypt/internal/fault"
)

// countingBlock wraps a real block and counts primitive invocations.
type countingBlock struct {
	cipher.Block
	calls int
}

func (c *countingBlock) Encrypt(dst, src []byte) { c.calls++; c.Block.Encrypt(dst, src) }
func (c *countingBlock) Decrypt(dst, src []byte) { c.calls++; c.Block.Decrypt(dst, src) }

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func testContext(t *testing.T) *Context {
	t.Helper()
	key, err := ParseKey("feffe9928665731c006a8f9467308308feffe9928665731c006a8f9467308308")
	require.NoError(t, err)
	iv, err := ParseIV("cafebabefacedbaddecaf88867308308")
	require.NoError(t, err)
	ctx, err := NewContext(key, iv)
	require.NoError(t, err)
	return ctx
}

// NIST SP 800-38A, F.2.5 / F.2.6 (CBC-AES256).
func TestEncryptDecrypt_KnownAnswer(t *testing.T) {
	key, err := ParseKey("603deb1015ca71be2b73aef0857d77811f352c073b6108d72d9810a30914dff4")
	require.NoError(t, err)
	iv, err := ParseIV("000102030405060708090a0b0c0d0e0f")
	require.NoError(t, err)

	ctx, err := NewContext(key, iv)
	require.NoError(t, err)

	plain := mustHex(t, "6bc1bee22e409f96e93d7e117393172a"+
		"ae2d8a571e03ac9c9eb76fac45af8e51"+
		"30c81c46a35ce411e5fbc1191a0a52ef"+
		"f69f2445df4f9b17ad2b417be66c3710")
	want := mustHex(t, "f58c4c04d6e5f1ba779eabfb5f7bfbd6"+
		"9cfc4e967edb808d679f777bc6702c7d"+
		"39f23369a9d9bacfa530e26304231461"+
		"b2eb05e2c39be9fcda6c19078c6a9d1b")

	got, err := Encrypt(ctx, plain)
	require.NoError(t, err)
	require.Equal(t, want, got)

	back, err := Decrypt(ctx, got)
	require.NoError(t, err)
	require.Equal(t, plain, back)
}

func TestEncrypt_DoesNotMutateInput(t *testing.T) {
	ctx := testContext(t)
	in := make([]byte, 128)
	for i := range in {
		in[i] = byte(i)
	}
	orig := append([]byte(nil), in...)

	out, err := Encrypt(ctx, in)
	require.NoError(t, err)
	require.Equal(t, orig, in)
	require.Len(t, out, len(in))
}

func TestRoundTrip_Property(t *testing.T) {
	ctx := testContext(t)

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 16).Draw(t, "blocks") * BlockSize
		p := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "plaintext")

		c, err := Encrypt(ctx, p)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		back, err := Decrypt(ctx, c)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if string(back) != string(p) {
			t.Fatalf("round trip mismatch")
		}
	})
}

func TestEncrypt_Deterministic(t *testing.T) {
	ctx := testContext(t)

	rapid.Check(t, func(t *rapid.T) {
		p := rapid.SliceOfN(rapid.Byte(), 128, 128).Draw(t, "plaintext")

		a, err := Encrypt(ctx, p)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		b, err := Encrypt(ctx, p)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if string(a) != string(b) {
			t.Fatalf("same key, iv and plaintext gave different ciphertext")
		}
	})
}

func TestEncrypt_Diffusion(t *testing.T) {
	ctx := testContext(t)
	rng := rand.New(rand.NewSource(1))

	const (
		size    = 128
		samples = 200
	)

	var diffBits, totalBits int

	for s := 0; s < samples; s++ {
		p := make([]byte, size)
		rng.Read(p)

		bit := rng.Intn(size * 8)
		q := append([]byte(nil), p...)
		q[bit/8] ^= 1 << (bit % 8)

		cp, err := Encrypt(ctx, p)
		require.NoError(t, err)
		cq, err := Encrypt(ctx, q)
		require.NoError(t, err)

		first := (bit / 8) / BlockSize

		// Blocks before the flipped one are untouched.
		require.Equal(t, cp[:first*BlockSize], cq[:first*BlockSize])

		// Every block from the flipped one onward changes.
		for blk := first; blk < size/BlockSize; blk++ {
			lo, hi := blk*BlockSize, (blk+1)*BlockSize
			require.NotEqual(t, cp[lo:hi], cq[lo:hi], "sample %d block %d unchanged", s, blk)
		}

		for i := first * BlockSize; i < size; i++ {
			diffBits += bits.OnesCount8(cp[i] ^ cq[i])
			totalBits += 8
		}
	}

	ratio := float64(diffBits) / float64(totalBits)
	require.InDelta(t, 0.5, ratio, 0.05, "avalanche ratio %.3f", ratio)
}

func TestLengthRejectedBeforePrimitive(t *testing.T) {
	var spy *countingBlock
	prim := func(key []byte) (cipher.Block, error) {
		b, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		spy = &countingBlock{Block: b}
		return spy, nil
	}

	ctx, err := NewContext(Key{}, IV{}, WithPrimitive(prim))
	require.NoError(t, err)

	for _, n := range []int{0, 1, 15, 17, 127, 129} {
		_, err := Encrypt(ctx, make([]byte, n))
		require.ErrorIs(t, err, ErrAlignment, "len %d", n)
		require.True(t, fault.Is(err, fault.KindLogic))

		_, err = Decrypt(ctx, make([]byte, n))
		require.ErrorIs(t, err, ErrAlignment, "len %d", n)
		require.True(t, fault.Is(err, fault.KindLogic))
	}
	require.Zero(t, spy.calls)

	_, err = Encrypt(ctx, make([]byte, 32))
	require.NoError(t, err)
	require.Equal(t, 2, spy.calls)
}

func TestNewContext_PrimitiveFaults(t *testing.T) {
	failing := func([]byte) (cipher.Block, error) { return nil, errors.New("engine offline") }
	_, err := NewContext(Key{}, IV{}, WithPrimitive(failing))
	require.True(t, fault.Is(err, fault.KindHardware))

	// An 8-byte block cipher cannot serve this mode.
	narrow := func([]byte) (cipher.Block, error) { return narrowBlock{}, nil }
	_, err = NewContext(Key{}, IV{}, WithPrimitive(narrow))
	require.True(t, fault.Is(err, fault.KindHardware))

	_, err = Encrypt(nil, make([]byte, 16))
	require.True(t, fault.Is(err, fault.KindHardware))
}

type narrowBlock struct{}

func (narrowBlock) BlockSize() int          { return 8 }
func (narrowBlock) Encrypt(dst, src []byte) { copy(dst, src) }
func (narrowBlock) Decrypt(dst, src []byte) { copy(dst, src) }

func TestWithIV_SharesKey(t *testing.T) {
	ctx := testContext(t)
	other := ctx.WithIV(IV{1})

	require.Equal(t, IV{1}, other.IV())
	require.NotEqual(t, ctx.IV(), other.IV())

	p := make([]byte, 64)
	a, err := Encrypt(ctx, p)
	require.NoError(t, err)
	b, err := Encrypt(other, p)
	require.NoError(t, err)
	require.NotEqual(t, a, b)

	back, err := Decrypt(other, b)
	require.NoError(t, err)
	require.Equal(t, p, back)
}

func TestParseKeyIV(t *testing.T) {
	k, err := ParseKey("0x FE:FF e9 92 86 65 73 1c 00 6a 8f 94 67 30 83 08 fe ff e9 92 86 65 73 1c 00 6a 8f 94 67 30 83 08")
	require.NoError(t, err)
	require.Equal(t, byte(0xfe), k[0])
	require.Equal(t, byte(0x08), k[31])

	_, err = ParseKey("feff")
	require.Error(t, err)
	_, err = ParseKey("zz")
	require.Error(t, err)

	_, err = ParseIV("cafebabefacedbaddecaf8886730830")
	require.Error(t, err)
	iv, err := ParseIV("cafebabefacedbaddecaf88867308308")
	require.NoError(t, err)
	require.Equal(t, byte(0xca), iv[0])
}
