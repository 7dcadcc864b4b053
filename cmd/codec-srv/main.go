// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command codec-srv starts a TDAQ server driving a codec board.
//
// The server is configured through the environment:
//
//	CODEC_DB        name of the board database (optional)
//	CODEC_CHIP      codec variant (cs4245, cs4265)
//	CODEC_PROFILE   register profile (default, duo, dwarf), per variant if unset
//	CODEC_BUS       I2C bus number
//	CODEC_ADDR      codec address on the I2C bus
//	CODEC_MCLK      master clock frequency (Hz)
//	CODEC_RATE      sample rate programmed on /start (Hz)
//	CODEC_WIDTH     sample width programmed on /start (bits)
//	CODEC_I2C       I2C transport (smbus, periph)
//	CODEC_SIM       register file of a simulated codec (optional)
//	CODEC_CTL_ADDR  address of the control server
package main // import "github.com/go-lpc/codec/cmd/codec-srv"

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	tlog "github.com/go-daq/tdaq/log"
	"github.com/go-lpc/codec"
	"github.com/go-lpc/codec/board"
	"github.com/go-lpc/codec/cs42xx"
	"github.com/go-lpc/codec/ctl"
	"github.com/go-lpc/codec/internal/mmap"
	"github.com/go-lpc/codec/regmap"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func main() {
	cmd := flags.New()

	name := "codec"
	if len(cmd.Args) > 0 {
		name = cmd.Args[0]
	}
	dev := newDevice(name)

	v, _ := codec.Version()
	log.Printf("codec-srv %s, board %q", v, name)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

type device struct {
	name string
	cfg  config

	bus    regmap.Bus
	closer io.Closer
	codec  *cs42xx.Codec

	brd    *board.Board
	ctl    *ctl.Server
	cancel context.CancelFunc
	grp    *errgroup.Group

	acquire board.Acquirer
}

func newDevice(name string) *device {
	return &device{
		name: name,
		cfg:  newConfig(name),
	}
}

func (dev *device) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return dev.configure(ctx.Ctx, ctx.Msg)
}

func (dev *device) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	return dev.attach(ctx.Msg)
}

func (dev *device) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	err := dev.detach()
	if err != nil {
		ctx.Msg.Errorf("could not detach board: %+v", err)
	}
	return dev.attach(ctx.Msg)
}

func (dev *device) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return dev.start()
}

func (dev *device) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	return dev.stop()
}

func (dev *device) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return dev.close()
}

// configure opens the control bus and sets up the codec.
func (dev *device) configure(ctx context.Context, msg tlog.MsgStream) error {
	if dev.codec != nil {
		msg.Infof("codec already configured")
		return nil
	}

	err := dev.cfg.load(ctx)
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	v, ok := cs42xx.Lookup(dev.cfg.chip)
	if !ok {
		return fmt.Errorf("unknown codec variant %q", dev.cfg.chip)
	}

	opts := []cs42xx.Option{cs42xx.WithMsgStream(msg)}
	if dev.cfg.profile != "" {
		p, ok := cs42xx.LookupProfile(dev.cfg.profile)
		if !ok {
			return fmt.Errorf("unknown register profile %q", dev.cfg.profile)
		}
		opts = append(opts, cs42xx.WithProfile(p))
	}

	bus, closer, err := dev.openBus(v, msg)
	if err != nil {
		return fmt.Errorf("could not open control bus: %w", err)
	}

	codec, err := setupCodec(bus, v, dev.cfg.mclk, opts...)
	if err != nil {
		_ = closer.Close()
		return err
	}

	dev.bus = bus
	dev.closer = closer
	dev.codec = codec

	msg.Infof(
		"%s codec configured (rev=%d, mclk=%d)",
		v.Name, codec.Revision(), codec.SysClock(),
	)
	return nil
}

// setupCodec identifies the codec and programs its master clock and
// interface format.
func setupCodec(bus regmap.Bus, v cs42xx.Variant, mclk uint32, opts ...cs42xx.Option) (*cs42xx.Codec, error) {
	codec, err := cs42xx.New(bus, v, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not create codec: %w", err)
	}

	err = codec.SetSysClock(0, mclk)
	if err != nil {
		_ = codec.Close()
		return nil, fmt.Errorf("could not set master clock: %w", err)
	}

	err = codec.SetFormat(cs42xx.CodecSlave, cs42xx.I2S)
	if err != nil {
		_ = codec.Close()
		return nil, fmt.Errorf("could not set DAI format: %w", err)
	}

	return codec, nil
}

func (dev *device) openBus(v cs42xx.Variant, msg tlog.MsgStream) (regmap.Bus, io.Closer, error) {
	switch {
	case dev.cfg.sim != "":
		msg.Infof("simulated %s codec in %q", v.Name, dev.cfg.sim)
		h, err := mmap.Open(dev.cfg.sim, 256)
		if err != nil {
			return nil, nil, err
		}
		if h.At(cs42xx.RegChipID) == 0 {
			_, err = h.WriteAt([]byte{v.ChipID | 1}, cs42xx.RegChipID)
			if err != nil {
				_ = h.Close()
				return nil, nil, err
			}
		}
		return regmap.NewRW(h), h, nil

	case dev.cfg.i2c == "periph":
		_, err := host.Init()
		if err != nil {
			return nil, nil, fmt.Errorf("could not initialize periph host: %w", err)
		}
		bus, err := i2creg.Open(strconv.Itoa(dev.cfg.bus))
		if err != nil {
			return nil, nil, fmt.Errorf("could not open I2C bus %d: %w", dev.cfg.bus, err)
		}
		return regmap.NewI2C(bus, uint16(dev.cfg.addr)), bus, nil

	default:
		bus, err := regmap.OpenSMBus(dev.cfg.bus, dev.cfg.addr)
		if err != nil {
			return nil, nil, err
		}
		return bus, bus, nil
	}
}

// attach acquires the board lines, starts the expression pedal arbiter
// and the control server.
func (dev *device) attach(msg tlog.MsgStream) error {
	if dev.codec == nil {
		return fmt.Errorf("codec not configured")
	}

	opts := []board.Option{
		board.WithMsgStream(msg),
		board.WithLineNames(dev.cfg.lines),
	}
	switch {
	case dev.acquire != nil:
		opts = append(opts, board.WithAcquirer(dev.acquire))
	case dev.cfg.sim != "":
		opts = append(opts, board.WithAcquirer(simPins()))
	default:
		_, err := host.Init()
		if err != nil {
			return fmt.Errorf("could not initialize periph host: %w", err)
		}
	}

	brd, err := board.New(opts...)
	if err != nil {
		return fmt.Errorf("could not attach board: %w", err)
	}
	msg.Infof("board attached: %+v", brd.Caps())

	sfc, err := ctl.NewSurface(append(
		ctl.BoardControls(brd),
		ctl.CodecControls(dev.codec)...,
	)...)
	if err != nil {
		_ = brd.Close()
		return fmt.Errorf("could not create control surface: %w", err)
	}

	srv, err := ctl.NewServer(dev.cfg.ctl, sfc, msg)
	if err != nil {
		_ = brd.Close()
		return fmt.Errorf("could not start control server: %w", err)
	}
	msg.Infof("control server listening on %v", srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(srv.Serve)
	grp.Go(func() error { return brd.Run(ctx) })

	dev.brd = brd
	dev.ctl = srv
	dev.cancel = cancel
	dev.grp = grp
	return nil
}

func (dev *device) detach() error {
	if dev.brd == nil {
		return nil
	}

	dev.cancel()
	err := dev.ctl.Close()
	if err != nil {
		return fmt.Errorf("could not close control server: %w", err)
	}
	err = dev.grp.Wait()
	if err != nil {
		return fmt.Errorf("could not stop board: %w", err)
	}
	err = dev.brd.Close()
	if err != nil {
		return fmt.Errorf("could not close board: %w", err)
	}

	dev.brd = nil
	dev.ctl = nil
	return nil
}

func (dev *device) start() error {
	if dev.codec == nil {
		return fmt.Errorf("codec not configured")
	}

	err := dev.codec.SetBias(cs42xx.BiasPrepare)
	if err != nil {
		return err
	}

	err = dev.codec.HWParams(cs42xx.Params{
		Rate:  dev.cfg.rate,
		Width: dev.cfg.width,
	})
	if err != nil {
		return fmt.Errorf("could not configure stream: %w", err)
	}

	err = dev.codec.SetBias(cs42xx.BiasOn)
	if err != nil {
		return err
	}

	return dev.codec.Mute(false)
}

func (dev *device) stop() error {
	if dev.codec == nil {
		return fmt.Errorf("codec not configured")
	}

	err := dev.codec.Mute(true)
	if err != nil {
		return err
	}
	return dev.codec.SetBias(cs42xx.BiasStandby)
}

func (dev *device) close() error {
	err := dev.detach()
	if err != nil {
		return err
	}

	if dev.codec == nil {
		return nil
	}

	err = dev.codec.Close()
	if err != nil {
		return fmt.Errorf("could not close codec: %w", err)
	}
	err = dev.closer.Close()
	if err != nil {
		return fmt.Errorf("could not close control bus: %w", err)
	}

	dev.codec = nil
	dev.bus = nil
	return nil
}

// simPins returns an acquirer of fake lines.
func simPins() board.Acquirer {
	return func(name string) (gpio.PinIO, error) {
		p := &gpiotest.Pin{N: name}
		switch name {
		case board.LineExpFlag1.String(), board.LineExpFlag2.String():
			p.EdgesChan = make(chan gpio.Level)
		}
		return p, nil
	}
}
