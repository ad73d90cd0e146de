// internal/flash/builder.go
package flash

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	cfg "github.com/tamzrod/nvcrypt/internal/config"
	"github.com/tamzrod/nvcrypt/internal/fault"
)

// Build constructs the device named by the config and returns its closer.
// Assumes config has already passed Validate and Normalize.
// Any failure here is a hardware fault: there is nothing to retry.
func Build(d cfg.DeviceConfig, log logrus.FieldLogger) (Device, func() error, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	geo := Geometry{
		Size:        d.Size,
		SectorSize:  d.SectorSize,
		PageSize:    d.PageSize,
		Granularity: d.Granularity,
	}

	var (
		media Media
		err   error
	)

	switch d.Kind {
	case "memory":
		media = NewMemoryMedia(d.Size, d.Fill)

	case "file":
		media, err = OpenFileMedia(d.File.Path, d.Size, d.Fill)

	case "badger":
		media, err = OpenBadgerMedia(BadgerOptions{
			Path:       d.Badger.Path,
			InMemory:   d.Badger.InMemory,
			Size:       d.Size,
			SectorSize: d.SectorSize,
			Initial:    d.Fill,
		})

	case "modbus":
		m := d.Modbus
		dev, err := DialModbus(ModbusOptions{
			Mode:         m.Mode,
			Address:      m.Address,
			UnitID:       m.UnitID,
			BaseRegister: m.BaseRegister,
			Timeout:      time.Duration(m.TimeoutMs) * time.Millisecond,
			BaudRate:     m.BaudRate,
			DataBits:     m.DataBits,
			Parity:       m.Parity,
			StopBits:     m.StopBits,
			Size:         d.Size,
			Granularity:  d.Granularity,
		})
		if err != nil {
			return nil, nil, fault.Hardware("flash: dial modbus "+m.Address, err)
		}
		log.WithFields(logrus.Fields{
			"device":  "modbus",
			"mode":    m.Mode,
			"address": m.Address,
			"unit_id": m.UnitID,
		}).Debug("flash: device ready")
		return dev, dev.Close, nil

	default:
		return nil, nil, fault.Hardware("flash: build", fmt.Errorf("unknown device kind %q", d.Kind))
	}
	if err != nil {
		return nil, nil, fault.Hardware("flash: open "+d.Kind+" media", err)
	}

	dev, err := NewFlash(media, geo, log)
	if err != nil {
		_ = media.Close()
		return nil, nil, fault.Hardware("flash: build", err)
	}

	log.WithFields(logrus.Fields{
		"device": d.Kind,
		"size":   d.Size,
		"sector": d.SectorSize,
		"page":   d.PageSize,
	}).Debug("flash: device ready")

	return dev, dev.Close, nil
}
