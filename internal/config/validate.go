// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/nvcrypt/internal/cbc"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// STORE
	// ------------------------------------------------------------

	if cfg.Store.Length <= 0 || cfg.Store.Length%cbc.BlockSize != 0 {
		return fmt.Errorf(
			"store.length %d must be a positive multiple of %d",
			cfg.Store.Length,
			cbc.BlockSize,
		)
	}

	switch strings.ToLower(cfg.Store.IVPolicy) {
	case "fixed", "per_write":
	default:
		return fmt.Errorf("store.iv_policy %q: want fixed or per_write", cfg.Store.IVPolicy)
	}

	// ------------------------------------------------------------
	// CIPHER
	// ------------------------------------------------------------

	if _, err := cbc.ParseKey(cfg.Cipher.Key); err != nil {
		return fmt.Errorf("cipher.key: %w", err)
	}
	if _, err := cbc.ParseIV(cfg.Cipher.IV); err != nil {
		return fmt.Errorf("cipher.iv: %w", err)
	}

	// ------------------------------------------------------------
	// DEVICE GEOMETRY
	// ------------------------------------------------------------

	d := cfg.Device
	kind := strings.ToLower(d.Kind)

	switch kind {
	case "memory", "file", "badger", "modbus":
	default:
		return fmt.Errorf("device.kind %q: want memory, file, badger or modbus", d.Kind)
	}

	if d.Size == 0 {
		return fmt.Errorf("device.size must be > 0")
	}
	if d.Granularity == 0 {
		return fmt.Errorf("device.granularity must be > 0")
	}

	region := uint64(cfg.RegionLength())
	end := uint64(cfg.Store.Address) + region
	if end > uint64(d.Size) {
		return fmt.Errorf(
			"store region 0x%08X-0x%08X exceeds device size 0x%08X",
			cfg.Store.Address,
			end-1,
			d.Size,
		)
	}
	if cfg.Store.Address%d.Granularity != 0 || region%uint64(d.Granularity) != 0 {
		return fmt.Errorf(
			"store region addr=0x%08X len=%d not aligned to device granularity %d",
			cfg.Store.Address,
			region,
			d.Granularity,
		)
	}

	switch kind {
	case "memory", "file", "badger":
		if !powerOfTwo(d.SectorSize) {
			return fmt.Errorf("device.sector_size %d must be a power of two", d.SectorSize)
		}
		if !powerOfTwo(d.PageSize) || d.PageSize > d.SectorSize {
			return fmt.Errorf(
				"device.page_size %d must be a power of two no larger than sector_size %d",
				d.PageSize,
				d.SectorSize,
			)
		}
		if d.Size%d.SectorSize != 0 {
			return fmt.Errorf("device.size %d is not a whole number of sectors", d.Size)
		}
	}

	switch kind {
	case "file":
		if d.File.Path == "" {
			return fmt.Errorf("device.file.path required")
		}

	case "badger":
		if d.Badger.Path == "" && !d.Badger.InMemory {
			return fmt.Errorf("device.badger.path required unless in_memory is set")
		}

	case "modbus":
		m := d.Modbus
		switch strings.ToLower(m.Mode) {
		case "tcp", "rtu":
		default:
			return fmt.Errorf("device.modbus.mode %q: want tcp or rtu", m.Mode)
		}
		if m.Address == "" {
			return fmt.Errorf("device.modbus.address required")
		}
		if m.TimeoutMs < 0 {
			return fmt.Errorf("device.modbus.timeout_ms must be >= 0")
		}
		// two bytes per holding register
		if d.Granularity%2 != 0 || d.Size%2 != 0 {
			return fmt.Errorf("device.modbus: size and granularity must be even")
		}
		if uint32(m.BaseRegister)+d.Size/2 > 1<<16 {
			return fmt.Errorf(
				"device.modbus: base_register %d + %d registers exceeds the register space",
				m.BaseRegister,
				d.Size/2,
			)
		}
		if strings.ToLower(m.Mode) == "rtu" {
			switch strings.ToUpper(m.Parity) {
			case "N", "E", "O":
			default:
				return fmt.Errorf("device.modbus.parity %q: want N, E or O", m.Parity)
			}
			if m.BaudRate <= 0 {
				return fmt.Errorf("device.modbus.baud_rate must be > 0")
			}
		}
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: want text or json", cfg.Log.Format)
	}

	return nil
}

// RegionLength is the number of flash bytes the store occupies:
// the block, plus a leading IV under the per_write policy.
func (c *Config) RegionLength() int {
	if strings.EqualFold(c.Store.IVPolicy, "per_write") {
		return c.Store.Length + cbc.BlockSize
	}
	return c.Store.Length
}

func powerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}
