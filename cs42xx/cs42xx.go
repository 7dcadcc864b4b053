// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cs42xx drives the Cirrus Logic CS4245/CS4265 family of
// audio codecs through their register map.
package cs42xx // import "github.com/go-lpc/codec/cs42xx"

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/codec/clock"
	"github.com/go-lpc/codec/regmap"
	"periph.io/x/conn/v3/gpio"
)

var (
	ErrNoDevice      = errors.New("cs42xx: no such device")
	ErrInvalidFormat = errors.New("cs42xx: invalid DAI format")
	ErrInvalidClock  = errors.New("cs42xx: invalid clock id")
)

// Master selects which side of the digital audio interface drives the clocks.
type Master int

const (
	CodecSlave  Master = iota // codec is clock & frame slave
	CodecMaster               // codec is clock & frame master
)

// Iface is a digital audio interface format.
type Iface int

const (
	I2S Iface = iota + 1
	RightJ
	LeftJ
)

func (f Iface) String() string {
	switch f {
	case I2S:
		return "i2s"
	case RightJ:
		return "right-j"
	case LeftJ:
		return "left-j"
	}
	return fmt.Sprintf("Iface(%d)", int(f))
}

// Bias is a codec power level.
type Bias int

const (
	BiasOff Bias = iota
	BiasStandby
	BiasPrepare
	BiasOn
)

// Params describes a stream being configured.
type Params struct {
	Capture bool   // capture or playback stream
	Rate    uint32 // sample rate, in Hz
	Width   int    // sample width, in bits
}

// Option configures a codec.
type Option func(*config)

type config struct {
	msg     log.MsgStream
	reset   gpio.PinOut
	profile []regmap.Default
	delay   time.Duration
}

// WithMsgStream sets the message stream used by the codec.
func WithMsgStream(msg log.MsgStream) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithReset sets the line driving the codec reset input.
func WithReset(pin gpio.PinOut) Option {
	return func(cfg *config) {
		cfg.reset = pin
	}
}

// WithProfile overrides the register profile applied after probing.
func WithProfile(profile []regmap.Default) Option {
	return func(cfg *config) {
		cfg.profile = profile
	}
}

// Codec is an attached CS42xx codec.
type Codec struct {
	mu  sync.Mutex
	msg log.MsgStream
	v   Variant
	rm  *regmap.Map
	clk clock.Clock

	reset gpio.PinOut
	rev   uint8
	iface Iface

	err error
}

// New identifies the codec behind bus and applies the variant register profile.
func New(bus regmap.Bus, v Variant, opts ...Option) (*Codec, error) {
	cfg := config{
		profile: v.Profile,
		delay:   1 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.msg == nil {
		cfg.msg = log.NewMsgStream(v.Name, log.LvlInfo, os.Stdout)
	}

	c := &Codec{
		msg:   cfg.msg,
		v:     v,
		rm:    regmap.New(bus, v.config()),
		reset: cfg.reset,
	}

	if c.reset != nil {
		time.Sleep(cfg.delay)
		err := c.reset.Out(gpio.High)
		if err != nil {
			return nil, fmt.Errorf("cs42xx: could not release reset line: %w", err)
		}
	}

	err := c.identify()
	if err != nil {
		return nil, err
	}

	for _, w := range cfg.profile {
		err = c.rm.Write(w.Reg, w.Val)
		if err != nil {
			return nil, fmt.Errorf("cs42xx: could not apply %s profile: %w", v.Name, err)
		}
	}

	return c, nil
}

func (c *Codec) identify() error {
	reg, err := c.rm.Read(RegChipID)
	if err != nil {
		c.msg.Errorf("failed to read chip ID: %+v", err)
		return fmt.Errorf("cs42xx: could not read chip ID: %w", err)
	}

	if id := reg & chipIDMask; id != c.v.ChipID {
		c.msg.Errorf(
			"%s part number ID: 0x%x, expected: 0x%x",
			c.v.Name, id>>4, c.v.ChipID>>4,
		)
		return fmt.Errorf(
			"cs42xx: invalid %s chip ID 0x%x (want=0x%x): %w",
			c.v.Name, id, c.v.ChipID, ErrNoDevice,
		)
	}

	c.rev = reg & revIDMask
	c.msg.Infof("%s version %x", c.v.Name, c.rev)
	return nil
}

// Close puts the codec back into reset, if a reset line was provided.
func (c *Codec) Close() error {
	if c.reset == nil {
		return nil
	}
	err := c.reset.Out(gpio.Low)
	if err != nil {
		return fmt.Errorf("cs42xx: could not assert reset line: %w", err)
	}
	return nil
}

// Variant returns the codec variant.
func (c *Codec) Variant() Variant { return c.v }

// Revision returns the silicon revision read when the codec was identified.
func (c *Codec) Revision() uint8 { return c.rev }

// Regmap returns the codec register map.
func (c *Codec) Regmap() *regmap.Map { return c.rm }

// SysClock returns the current master clock frequency, or 0 when unset.
func (c *Codec) SysClock() uint32 { return c.clk.MCLK() }

// SetSysClock sets the master clock frequency fed on clock input id.
// Only clock id 0 exists. A zero freq is ignored.
func (c *Codec) SetSysClock(id int, freq uint32) error {
	if freq == 0 {
		c.msg.Infof("ignoring freq 0")
		return nil
	}
	if id != 0 {
		c.msg.Errorf("invalid clk_id %d", id)
		return fmt.Errorf("cs42xx: could not set sysclk on clock %d: %w", id, ErrInvalidClock)
	}

	err := c.clk.Set(freq)
	if err != nil {
		c.msg.Errorf("invalid freq parameter %d", freq)
		return fmt.Errorf("cs42xx: could not set sysclk: %w", err)
	}
	return nil
}

// SetFormat configures the clock direction and the interface format.
func (c *Codec) SetFormat(m Master, iface Iface) error {
	var master uint8
	switch m {
	case CodecMaster:
		master = adcCtlMaster
	case CodecSlave:
		master = 0
	default:
		return fmt.Errorf("cs42xx: invalid master mode %d: %w", m, ErrInvalidFormat)
	}

	switch iface {
	case I2S, RightJ, LeftJ:
	default:
		return fmt.Errorf("cs42xx: invalid interface format %v: %w", iface, ErrInvalidFormat)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.rm.UpdateBits(RegADCCtl, adcCtlMaster, master)
	if err != nil {
		return fmt.Errorf("cs42xx: could not set master mode: %w", err)
	}
	c.iface = iface
	return nil
}

// HWParams programs the clock dividers and interface format for a stream.
func (c *Codec) HWParams(p Params) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.iface {
	case I2S, LeftJ:
	case RightJ:
		if p.Capture {
			return fmt.Errorf("cs42xx: right-justified capture not supported: %w", ErrInvalidFormat)
		}
	default:
		return fmt.Errorf("cs42xx: no interface format set: %w", ErrInvalidFormat)
	}

	e, err := c.clk.ResolveForRate(p.Rate)
	if err != nil {
		c.msg.Errorf("can't get correct mclk")
		return fmt.Errorf("cs42xx: could not configure rate=%d: %w", p.Rate, err)
	}

	c.err = nil
	c.update(RegADCCtl, adcCtlFM, e.FM<<6)
	c.update(RegMCLKFreq, mclkFreqMask, e.Div<<4)

	switch c.iface {
	case I2S:
		c.update(RegDACCtl, dacCtlDIF, 1<<4)
		c.update(RegADCCtl, adcCtlDIF, 1<<4)
		c.spdif(RegSPDIFCtl2, spdifCtl2DIF, 1<<6)
	case RightJ:
		if p.Width == 16 {
			c.update(RegDACCtl, dacCtlDIF, 2<<4)
			c.spdif(RegSPDIFCtl2, spdifCtl2DIF, 2<<6)
		} else {
			c.update(RegDACCtl, dacCtlDIF, 3<<4)
			c.spdif(RegSPDIFCtl2, spdifCtl2DIF, 3<<6)
		}
	case LeftJ:
		c.update(RegDACCtl, dacCtlDIF, 0)
		c.update(RegADCCtl, adcCtlDIF, 0)
		c.spdif(RegSPDIFCtl2, spdifCtl2DIF, 0)
	}

	if c.err != nil {
		return fmt.Errorf("cs42xx: could not configure rate=%d: %w", p.Rate, c.err)
	}
	return nil
}

// Mute mutes or unmutes the codec outputs.
func (c *Codec) Mute(mute bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dac, adc, tx uint8
	if mute {
		dac, adc, tx = dacCtlMute, adcCtlMute, spdifCtl2Mute
	}

	c.err = nil
	c.update(RegDACCtl, dacCtlMute, dac)
	if c.v.SPDIF {
		c.update(RegSPDIFCtl2, spdifCtl2Mute, tx)
	} else {
		c.update(RegADCCtl, adcCtlMute, adc)
	}

	if c.err != nil {
		return fmt.Errorf("cs42xx: could not set mute=%v: %w", mute, c.err)
	}
	return nil
}

// SetBias moves the codec to the provided power level.
func (c *Codec) SetBias(lvl Bias) error {
	var err error
	switch lvl {
	case BiasOn:
	case BiasPrepare:
		err = c.rm.UpdateBits(RegPwrCtl, pwrCtlPDN, 0)
	case BiasStandby, BiasOff:
		err = c.rm.UpdateBits(RegPwrCtl, pwrCtlPDN, pwrCtlPDN)
	default:
		return fmt.Errorf("cs42xx: invalid bias level %d", lvl)
	}
	if err != nil {
		return fmt.Errorf("cs42xx: could not set bias level %d: %w", lvl, err)
	}
	return nil
}

func (c *Codec) update(reg, mask, v uint8) {
	if c.err != nil {
		return
	}
	c.err = c.rm.UpdateBits(reg, mask, v)
}

func (c *Codec) spdif(reg, mask, v uint8) {
	if !c.v.SPDIF {
		return
	}
	c.update(reg, mask, v)
}
