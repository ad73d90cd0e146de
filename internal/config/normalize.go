// internal/config/normalize.go
package config

import (
	"strings"

	"github.com/tamzrod/nvcrypt/internal/cbc"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Store.IVPolicy = strings.ToLower(cfg.Store.IVPolicy)

	// Key material: canonical lowercase hex, no separators.
	cfg.Cipher.Key = strings.ToLower(cbc.CleanHex(cfg.Cipher.Key))
	cfg.Cipher.IV = strings.ToLower(cbc.CleanHex(cfg.Cipher.IV))

	cfg.Device.Kind = strings.ToLower(cfg.Device.Kind)
	cfg.Device.Modbus.Mode = strings.ToLower(cfg.Device.Modbus.Mode)
	cfg.Device.Modbus.Parity = strings.ToUpper(cfg.Device.Modbus.Parity)

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
}
