// internal/store/store.go
package store

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/nvcrypt/internal/cbc"
	"github.com/tamzrod/nvcrypt/internal/fault"
	"github.com/tamzrod/nvcrypt/internal/flash"
	"github.com/tamzrod/nvcrypt/internal/status"
)

var (
	// ErrNotLoaded: Store was called with no plaintext from Load or Init.
	ErrNotLoaded = errors.New("no plaintext loaded")

	// ErrLength: a block of the wrong length was handed in or produced.
	ErrLength = errors.New("block length mismatch")
)

// Config is the fixed address of the record.
type Config struct {
	Address  uint32
	Length   int
	IVPolicy IVPolicy
}

// Controller runs the read, decrypt, transform, encrypt, write pipeline
// for one parameter block. Every stage completes before the next begins.
//
// A Controller is not safe for concurrent use. It exclusively owns its
// plaintext; callers and collaborators only ever see copies.
type Controller struct {
	cfg    Config
	dev    flash.Device
	cipher *cbc.Context
	log    logrus.FieldLogger
	rand   io.Reader

	state   State
	plain   Block // nil until Load or Init succeeds
	cycles  uint64
	health  uint16
	lastErr error
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRandom sets the IV source of the per-write policy (crypto/rand by default).
func WithRandom(r io.Reader) Option {
	return func(c *Controller) {
		if r != nil {
			c.rand = r
		}
	}
}

// New creates a controller with immutable config.
func New(cfg Config, dev flash.Device, cc *cbc.Context, opts ...Option) (*Controller, error) {
	if dev == nil {
		return nil, fault.Hardware("store: new", errors.New("storage device required"))
	}
	if cc == nil {
		return nil, fault.Hardware("store: new", errors.New("cipher context required"))
	}
	if cfg.Length <= 0 || cfg.Length%cbc.BlockSize != 0 {
		return nil, fault.Logic("store: new", fmt.Errorf("%w: length %d is not a positive multiple of %d", ErrLength, cfg.Length, cbc.BlockSize))
	}

	c := &Controller{
		cfg:    cfg,
		dev:    dev,
		cipher: cc,
		log:    logrus.StandardLogger(),
		rand:   rand.Reader,
		health: status.HealthUnknown,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := dev.Geometry().Check("store: region", cfg.Address, c.regionLen()); err != nil {
		return nil, err
	}

	c.log = c.log.WithFields(logrus.Fields{
		"addr": fmt.Sprintf("0x%08X", cfg.Address),
		"len":  cfg.Length,
	})
	return c, nil
}

// State reports the current stage, or the stage a fault stopped in.
func (c *Controller) State() State { return c.state }

// Snapshot returns the diagnostic view of the controller.
func (c *Controller) Snapshot() status.Snapshot {
	s := status.Snapshot{
		Health:        c.health,
		State:         c.state.String(),
		LastFaultCode: status.ErrorCode(c.lastErr),
		Cycles:        c.cycles,
	}
	if c.lastErr != nil {
		s.LastFault = c.lastErr.Error()
	}
	return s
}

// Load reads the region and decrypts it. The result reflects the last
// successful Store, or the initial content of the region.
func (c *Controller) Load() (Block, error) {
	c.state = StateReading
	raw, err := c.dev.Read(c.cfg.Address, c.regionLen())
	if err != nil {
		return nil, c.fail(fmt.Errorf("store: load: %w", err))
	}
	if len(raw) != c.regionLen() {
		return nil, c.fail(fault.Transfer("store: load", fmt.Errorf("read %d of %d bytes", len(raw), c.regionLen())))
	}

	ctx, ciphertext := c.cipher, raw
	if c.cfg.IVPolicy == IVPerWrite {
		ctx, ciphertext = c.cipher.WithIV(c.RecordIV(raw)), raw[cbc.BlockSize:]
	}

	c.state = StateDecrypting
	plain, err := cbc.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, c.fail(fmt.Errorf("store: load: %w", err))
	}

	c.plain = Block(plain)
	c.done()

	iv := ctx.IV()

	c.log.WithFields(logrus.Fields{
		"fingerprint": Fingerprint(raw),
		"iv":          hex.EncodeToString(iv[:]),
	}).Debug("store: loaded")
	return c.plain.Clone(), nil
}

// Raw returns the region exactly as stored. A read fault is recorded in the
// diagnostics but the loaded plaintext is kept, since nothing was decrypted.
func (c *Controller) Raw() ([]byte, error) {
	c.state = StateReading
	raw, err := c.dev.Read(c.cfg.Address, c.regionLen())
	if err != nil {
		return nil, c.record(fmt.Errorf("store: raw: %w", err))
	}
	c.done()
	return raw, nil
}

// RecordIV returns the IV the given region was encrypted under.
func (c *Controller) RecordIV(raw []byte) cbc.IV {
	if c.cfg.IVPolicy == IVPerWrite && len(raw) >= cbc.BlockSize {
		var iv cbc.IV
		copy(iv[:], raw[:cbc.BlockSize])
		return iv
	}
	return c.cipher.IV()
}

// Init installs a freshly constructed plaintext without reading flash.
func (c *Controller) Init(b Block) error {
	if len(b) != c.cfg.Length {
		return c.fail(fault.Logic("store: init", fmt.Errorf("%w: got %d, want %d", ErrLength, len(b), c.cfg.Length)))
	}
	c.plain = b.Clone()
	c.done()
	return nil
}

// Store applies transform to the loaded plaintext, encrypts the result
// and writes it. On any fault the loaded plaintext is dropped, so a later
// Store cannot write ciphertext derived from stale data.
func (c *Controller) Store(transform Transform) error {
	if transform == nil {
		return c.fail(fault.Logic("store: save", errors.New("nil transform")))
	}
	if c.plain == nil {
		return c.fail(fault.Logic("store: save", ErrNotLoaded))
	}

	c.state = StateTransforming
	next := transform(c.plain.Clone())
	if len(next) != c.cfg.Length {
		return c.fail(fault.Logic("store: transform", fmt.Errorf("%w: got %d, want %d", ErrLength, len(next), c.cfg.Length)))
	}
	next = next.Clone()

	c.state = StateEncrypting
	ctx, prefix := c.cipher, []byte(nil)
	if c.cfg.IVPolicy == IVPerWrite {
		var iv cbc.IV
		if _, err := io.ReadFull(c.rand, iv[:]); err != nil {
			return c.fail(fault.Hardware("store: iv source", err))
		}
		ctx, prefix = c.cipher.WithIV(iv), iv[:]
	}

	ciphertext, err := cbc.Encrypt(ctx, next)
	if err != nil {
		return c.fail(fmt.Errorf("store: save: %w", err))
	}
	region := append(prefix, ciphertext...)

	c.state = StateWriting
	if err := c.dev.Write(c.cfg.Address, region); err != nil {
		return c.fail(fmt.Errorf("store: save: %w", err))
	}

	c.plain = next
	c.cycles++
	c.done()

	c.log.WithFields(logrus.Fields{
		"fingerprint": Fingerprint(region),
		"cycles":      c.cycles,
	}).Debug("store: written")
	return nil
}

// Cycle is one complete load, transform, store pass.
func (c *Controller) Cycle(transform Transform) (before, after Block, err error) {
	before, err = c.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := c.Store(transform); err != nil {
		return before, nil, err
	}
	return before, c.plain.Clone(), nil
}

func (c *Controller) regionLen() int {
	if c.cfg.IVPolicy == IVPerWrite {
		return c.cfg.Length + cbc.BlockSize
	}
	return c.cfg.Length
}

func (c *Controller) done() {
	c.state = StateIdle
	c.health = status.HealthOK
}

// fail records err and drops the plaintext.
func (c *Controller) fail(err error) error {
	c.plain = nil
	return c.record(err)
}

func (c *Controller) record(err error) error {
	c.health = status.HealthFault
	c.lastErr = err

	c.log.WithError(err).WithField("state", c.state.String()).Error("store: cycle aborted")
	return err
}

// Fingerprint identifies stored bytes in logs without exposing them.
func Fingerprint(b []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}
