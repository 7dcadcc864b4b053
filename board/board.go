// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package board drives the auxiliary hardware of the codec boards:
// headphone amplifier, gain stages, true-bypass relays and the
// CV/expression pedal input selector.
package board // import "github.com/go-lpc/codec/board"

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-daq/tdaq/log"
)

// Caps describes the hardware found at attach time.
type Caps struct {
	Pins        bool // all required lines acquired
	Bypass      bool // true-bypass relays
	HeadphoneCV bool // headphone/CV output selector
	ExpPedal    bool // expression pedal enable and flag lines
	IRQ         bool // edge detection on the expression pedal flag lines
}

// Option configures a board.
type Option func(*config)

type config struct {
	msg     log.MsgStream
	acquire Acquirer
	names   map[Line]string
	period  time.Duration
}

func newConfig() config {
	return config{
		acquire: ByName,
		names:   make(map[Line]string),
		period:  100 * time.Millisecond,
	}
}

// WithMsgStream sets the message stream used by the board.
func WithMsgStream(msg log.MsgStream) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithAcquirer sets the function used to acquire the board lines.
func WithAcquirer(acquire Acquirer) Option {
	return func(cfg *config) {
		cfg.acquire = acquire
	}
}

// WithLineNames overrides the names under which lines are acquired.
func WithLineNames(names map[Line]string) Option {
	return func(cfg *config) {
		for k, v := range names {
			cfg.names[k] = v
		}
	}
}

// WithPollPeriod sets the time Run waits for an edge before checking
// for cancellation.
func WithPollPeriod(d time.Duration) Option {
	return func(cfg *config) {
		cfg.period = d
	}
}

// Board is an attached board.
type Board struct {
	msg  log.MsgStream
	pins *PinSet
	caps Caps

	amp *Amp
	enc *Encoder
	arb *Arbiter
}

// New acquires the board lines and drives them to their initial state:
// headphone amplifier at step 0, gain stage 0 on both channels, true-bypass
// engaged, headphone output selected and CV input mode.
func New(opts ...Option) (*Board, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.msg == nil {
		cfg.msg = log.NewMsgStream("board", log.LvlInfo, os.Stdout)
	}

	brd := &Board{
		msg:  cfg.msg,
		pins: AcquirePins(cfg.acquire, cfg.names, cfg.msg),
	}
	brd.amp = newAmp(brd.pins)
	brd.enc = newEncoder(brd.pins)
	brd.arb = newArbiter(brd.pins, cfg.msg, cfg.period)

	err := brd.init()
	if err != nil {
		_ = brd.pins.Halt()
		return nil, err
	}

	brd.caps = Caps{
		Pins:        brd.pins.Initialized,
		Bypass:      brd.pins.Initialized && brd.pins.Has(LineBypassLeft, LineBypassRight),
		HeadphoneCV: brd.pins.Initialized && brd.pins.Has(LineHeadphoneCV),
		ExpPedal: brd.pins.Initialized && brd.pins.Has(
			LineExpEnable1, LineExpEnable2, LineExpFlag1, LineExpFlag2,
		),
		IRQ: brd.arb.IRQ(),
	}
	brd.msg.Debugf("board caps: %+v", brd.caps)

	return brd, nil
}

func (brd *Board) init() error {
	if !brd.pins.Initialized {
		return nil
	}

	err := brd.amp.Reset()
	if err != nil {
		return fmt.Errorf("board: could not initialize board: %w", err)
	}

	err = brd.enc.init()
	if err != nil {
		return fmt.Errorf("board: could not initialize board: %w", err)
	}

	err = brd.arb.init()
	if err != nil {
		return fmt.Errorf("board: could not initialize board: %w", err)
	}

	return nil
}

// Caps returns the hardware capabilities found at attach time.
func (brd *Board) Caps() Caps { return brd.caps }

// Pins returns the acquired lines.
func (brd *Board) Pins() *PinSet { return brd.pins }

// Amp returns the headphone amplifier.
func (brd *Board) Amp() *Amp { return brd.amp }

// Encoder returns the gain-stage, true-bypass and headphone/CV encoder.
func (brd *Board) Encoder() *Encoder { return brd.enc }

// Arbiter returns the CV/expression pedal mode arbiter.
func (brd *Board) Arbiter() *Arbiter { return brd.arb }

func (brd *Board) SetVolume(v int) (int, error)             { return brd.amp.SetVolume(v) }
func (brd *Board) Volume() int                              { return brd.amp.Volume() }
func (brd *Board) SetGainStage(ch Channel, stage int) error { return brd.enc.SetGainStage(ch, stage) }
func (brd *Board) GainStage(ch Channel) int                 { return brd.enc.GainStage(ch) }
func (brd *Board) SetBypass(ch Channel, engaged bool) error { return brd.enc.SetBypass(ch, engaged) }
func (brd *Board) Bypass(ch Channel) bool                   { return brd.enc.Bypass(ch) }
func (brd *Board) SetHeadphoneCV(cv bool) error             { return brd.enc.SetHeadphoneCV(cv) }
func (brd *Board) HeadphoneCV() bool                        { return brd.enc.HeadphoneCV() }
func (brd *Board) SetMode(m Mode) error                     { return brd.arb.SetMode(m) }
func (brd *Board) Mode() Mode                               { return brd.arb.Mode() }
func (brd *Board) SetSide(s Side) error                     { return brd.arb.SetSide(s) }
func (brd *Board) Side() Side                               { return brd.arb.Side() }

// Run watches the expression pedal flag lines until ctx is done.
func (brd *Board) Run(ctx context.Context) error {
	return brd.arb.Run(ctx)
}

// Close releases the board lines.
func (brd *Board) Close() error {
	return brd.pins.Halt()
}
