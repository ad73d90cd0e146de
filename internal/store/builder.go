// internal/store/builder.go
package store

import (
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/nvcrypt/internal/cbc"
	cfg "github.com/tamzrod/nvcrypt/internal/config"
	"github.com/tamzrod/nvcrypt/internal/fault"
	"github.com/tamzrod/nvcrypt/internal/flash"
)

// Build wires device, cipher context and controller from one config.
// Assumes config has already passed Validate and Normalize.
func Build(c *cfg.Config, log logrus.FieldLogger, opts ...Option) (*Controller, func() error, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	key, err := cbc.ParseKey(c.Cipher.Key)
	if err != nil {
		return nil, nil, fault.Hardware("store: cipher key", err)
	}
	iv, err := cbc.ParseIV(c.Cipher.IV)
	if err != nil {
		return nil, nil, fault.Hardware("store: cipher iv", err)
	}
	policy, err := ParseIVPolicy(c.Store.IVPolicy)
	if err != nil {
		return nil, nil, fault.Hardware("store: iv policy", err)
	}

	// constructed once, read-only for the rest of the process
	cc, err := cbc.NewContext(key, iv)
	if err != nil {
		return nil, nil, err
	}

	dev, closeDev, err := flash.Build(c.Device, log)
	if err != nil {
		return nil, nil, err
	}

	ctrl, err := New(
		Config{
			Address:  c.Store.Address,
			Length:   c.Store.Length,
			IVPolicy: policy,
		},
		dev,
		cc,
		append([]Option{WithLogger(log)}, opts...)...,
	)
	if err != nil {
		_ = closeDev()
		return nil, nil, err
	}

	return ctrl, closeDev, nil
}
