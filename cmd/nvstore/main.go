// cmd/nvstore/main.go
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/tamzrod/nvcrypt/internal/cbc"
	"github.com/tamzrod/nvcrypt/internal/config"
	"github.com/tamzrod/nvcrypt/internal/store"
)

type options struct {
	Config string `short:"c" long:"config" description:"YAML config file; the reference instance is used when omitted"`
}

// app carries what every command needs once the config is loaded.
type app struct {
	opts *options
	out  io.Writer

	cfg      *config.Config
	log      *logrus.Logger
	ctrl     *store.Controller
	closeDev func() error
}

func main() {
	opts := &options{}
	a := &app{opts: opts, out: os.Stdout}

	parser := flags.NewParser(opts, flags.Default)
	parser.ShortDescription = "encrypted non-volatile parameter store"

	mustAdd(parser, "show", "Print the decrypted block",
		"Load the block, decrypt it and print it as space separated decimals.",
		&showCommand{app: a})
	mustAdd(parser, "cycle", "Load, transform and store the block",
		"Load and print the block, add --step to every byte and store it again. "+
			"Repeats --count times every --interval; --count 0 runs until interrupted.",
		&cycleCommand{app: a})
	mustAdd(parser, "fill", "Store a fresh block of one value",
		"Construct a new plaintext with every byte set to --value and store it, "+
			"without reading the previous content.",
		&fillCommand{app: a})
	mustAdd(parser, "set", "Overwrite bytes of the stored block",
		"Load the block, overwrite the bytes starting at --offset with --data "+
			"and store it again. The patch must fit inside the block.",
		&setCommand{app: a})

	if _, err := parser.Parse(); err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func mustAdd(p *flags.Parser, name, short, long string, data interface{}) {
	if _, err := p.AddCommand(name, short, long, data); err != nil {
		panic(err)
	}
}

// open loads and validates config, then builds the controller.
// Device teardown is registered as a logrus exit handler so a halt still
// releases the device.
func (a *app) open() error {
	cfg := config.Default()
	if a.opts.Config != "" {
		var err error
		if cfg, err = config.Load(a.opts.Config); err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	ctrl, closeDev, err := store.Build(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("nvstore: startup failed")
	}
	logrus.RegisterExitHandler(func() {
		if err := closeDev(); err != nil {
			log.WithError(err).Warn("nvstore: device close failed")
		}
	})

	a.cfg, a.log, a.ctrl, a.closeDev = cfg, log, ctrl, closeDev
	return nil
}

// halt flushes diagnostics and ends the process. There is no recovery path.
func (a *app) halt(err error) {
	a.log.WithFields(a.ctrl.Snapshot().Fields()).WithError(err).Fatal("nvstore: halted")
}

// finish releases the device on the success path.
func (a *app) finish() error {
	if err := a.closeDev(); err != nil {
		return fmt.Errorf("device close failed: %w", err)
	}
	return nil
}

func newLogger(c config.LogConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(level)
	if c.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

// ---- show ----

type showCommand struct {
	app *app

	Hex bool `long:"hex" description:"Print a hex dump instead of decimals"`
	Raw bool `long:"raw" description:"Print the stored ciphertext and its fingerprint"`
}

func (c *showCommand) Execute(_ []string) error {
	if err := c.app.open(); err != nil {
		return err
	}

	if c.Raw {
		raw, err := c.app.ctrl.Raw()
		if err != nil {
			c.app.halt(err)
		}
		iv := c.app.ctrl.RecordIV(raw)
		fmt.Fprintf(c.app.out, "fingerprint %s\n", store.Fingerprint(raw))
		fmt.Fprintf(c.app.out, "iv %s\n", hex.EncodeToString(iv[:]))
		fmt.Fprint(c.app.out, hex.Dump(raw))
		return c.app.finish()
	}

	block, err := c.app.ctrl.Load()
	if err != nil {
		c.app.halt(err)
	}
	printBlock(c.app.out, block, c.Hex)
	return c.app.finish()
}

// ---- cycle ----

type cycleCommand struct {
	app *app

	Step     uint8         `long:"step" default:"1" description:"Value added to every byte, mod 256"`
	Count    int           `long:"count" default:"1" description:"Number of cycles; 0 runs until interrupted"`
	Interval time.Duration `long:"interval" description:"Pause between cycles"`
	Hex      bool          `long:"hex" description:"Print hex dumps instead of decimals"`
}

func (c *cycleCommand) Execute(_ []string) error {
	if err := c.app.open(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := c.app.ctrl.Run(
		ctx,
		store.RunConfig{Interval: c.Interval, Count: c.Count},
		store.Increment(c.Step),
		func(r store.CycleResult) {
			if r.Before != nil {
				printBlock(c.app.out, r.Before, c.Hex)
			}
			if r.Err == nil {
				c.app.log.WithFields(logrus.Fields{
					"cycle": r.Cycle,
					"at":    r.At.Format(time.RFC3339Nano),
				}).Info("nvstore: cycle complete")
			}
		},
	)
	if err != nil {
		c.app.halt(err)
	}
	return c.app.finish()
}

// ---- fill ----

type fillCommand struct {
	app *app

	Value uint8 `long:"value" required:"true" description:"Byte value for every position"`
}

func (c *fillCommand) Execute(_ []string) error {
	if err := c.app.open(); err != nil {
		return err
	}

	if err := c.app.ctrl.Init(make(store.Block, c.app.cfg.Store.Length)); err != nil {
		c.app.halt(err)
	}
	if err := c.app.ctrl.Store(store.Fill(c.Value)); err != nil {
		c.app.halt(err)
	}

	c.app.log.WithField("value", c.Value).Info("nvstore: block filled")
	return c.app.finish()
}

// ---- set ----

type setCommand struct {
	app *app

	Offset int    `long:"offset" description:"First byte to overwrite"`
	Data   string `long:"data" required:"true" description:"Replacement bytes as hex"`
}

func (c *setCommand) Execute(_ []string) error {
	data, err := hex.DecodeString(cbc.CleanHex(c.Data))
	if err != nil {
		return fmt.Errorf("--data: %w", err)
	}
	if err := c.app.open(); err != nil {
		return err
	}

	if _, err := c.app.ctrl.Load(); err != nil {
		c.app.halt(err)
	}
	if err := c.app.ctrl.Store(store.Patch(c.Offset, data)); err != nil {
		c.app.halt(err)
	}

	c.app.log.WithFields(logrus.Fields{
		"offset": c.Offset,
		"len":    len(data),
	}).Info("nvstore: block patched")
	return c.app.finish()
}

// printBlock writes the block the way the firmware demo does:
// decimals separated by spaces, one block per line.
func printBlock(w io.Writer, b store.Block, asHex bool) {
	if asHex {
		fmt.Fprint(w, hex.Dump(b))
		return
	}

	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprint(v)
	}
	fmt.Fprintln(w, strings.Join(parts, " "))
}
