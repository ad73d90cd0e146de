// internal/config/config.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Cipher CipherConfig `yaml:"cipher"`
	Device DeviceConfig `yaml:"device"`
	Log    LogConfig    `yaml:"log"`
}

// ---- STORE ----

type StoreConfig struct {
	Address  uint32 `yaml:"address"`
	Length   int    `yaml:"length"`
	IVPolicy string `yaml:"iv_policy"` // fixed | per_write
}

// ---- CIPHER ----

// CipherConfig carries key material as hex strings.
// No provisioning: whatever is here is used as-is for the process lifetime.
type CipherConfig struct {
	Key string `yaml:"key"`
	IV  string `yaml:"iv"`
}

// ---- DEVICE ----

type DeviceConfig struct {
	Kind string `yaml:"kind"` // memory | file | badger | modbus

	// NOR geometry. Ignored by modbus except Size and Granularity.
	Size        uint32 `yaml:"size"`
	SectorSize  uint32 `yaml:"sector_size"`
	PageSize    uint32 `yaml:"page_size"`
	Granularity uint32 `yaml:"granularity"`

	// Fill is the content of a freshly created region.
	Fill uint8 `yaml:"fill"`

	File   FileConfig   `yaml:"file"`
	Badger BadgerConfig `yaml:"badger"`
	Modbus ModbusConfig `yaml:"modbus"`
}

type FileConfig struct {
	Path string `yaml:"path"`
}

type BadgerConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

type ModbusConfig struct {
	Mode         string `yaml:"mode"`    // tcp | rtu
	Address      string `yaml:"address"` // host:port or serial device
	UnitID       uint8  `yaml:"unit_id"`
	BaseRegister uint16 `yaml:"base_register"`
	TimeoutMs    int    `yaml:"timeout_ms"`

	// RTU only
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	Parity   string `yaml:"parity"`
	StopBits int    `yaml:"stop_bits"`
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// Reference key material of the firmware this store is compatible with.
const (
	ReferenceKey = "feffe9928665731c006a8f9467308308feffe9928665731c006a8f9467308308"
	ReferenceIV  = "cafebabefacedbaddecaf88867308308"
)

// Default returns the reference instance: a 128 byte block at 0x00B00000
// of a 16 MiB W25Q-class part, held in memory.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Address:  0x00B00000,
			Length:   128,
			IVPolicy: "fixed",
		},
		Cipher: CipherConfig{
			Key: ReferenceKey,
			IV:  ReferenceIV,
		},
		Device: DeviceConfig{
			Kind:        "memory",
			Size:        16 << 20,
			SectorSize:  4096,
			PageSize:    256,
			Granularity: 4,
			File:        FileConfig{Path: "flash.img"},
			Badger:      BadgerConfig{Path: "flashdb"},
			Modbus: ModbusConfig{
				Mode:      "tcp",
				Address:   "127.0.0.1:502",
				UnitID:    1,
				TimeoutMs: 1000,
				BaudRate:  19200,
				DataBits:  8,
				Parity:    "E",
				StopBits:  1,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML bytes on top of Default. An empty document yields Default.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
