// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-daq/tdaq/log"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio"
)

// Mode is the operating mode of the CV input.
type Mode int

const (
	CVMode Mode = iota
	ExpPedalMode
)

func (m Mode) String() string {
	switch m {
	case CVMode:
		return "cv"
	case ExpPedalMode:
		return "exp-pedal"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Side is the expression pedal contact carrying the signal.
type Side int

const (
	SignalOnTip Side = iota
	SignalOnRing
)

func (s Side) String() string {
	switch s {
	case SignalOnTip:
		return "tip"
	case SignalOnRing:
		return "ring"
	}
	return fmt.Sprintf("Side(%d)", int(s))
}

// Arbiter assigns the two expression pedal enable lines between the CV
// and expression pedal modes.
// A rising edge on either pedal flag line forces the CV mode.
//
// The enable lines are only driven by the arbiter, under its lock.
type Arbiter struct {
	mu  sync.Mutex
	msg log.MsgStream

	en1   gpio.PinOut // ring
	en2   gpio.PinOut // tip
	flags [2]gpio.PinIn

	irq    bool // edge detection registered on both flag lines
	period time.Duration

	mode   Mode
	side   Side
	events int
}

func newArbiter(ps *PinSet, msg log.MsgStream, period time.Duration) *Arbiter {
	return &Arbiter{
		msg:    msg,
		en1:    ps.out(LineExpEnable1),
		en2:    ps.out(LineExpEnable2),
		flags:  [2]gpio.PinIn{ps.in(LineExpFlag1), ps.in(LineExpFlag2)},
		period: period,
	}
}

// init drives both enable lines low and registers rising-edge detection
// on the flag lines. A registration failure is not fatal: the arbiter
// keeps track of the requested state without driving the enable lines
// into the expression pedal mode.
func (arb *Arbiter) init() error {
	arb.mu.Lock()
	defer arb.mu.Unlock()

	var w writer
	w.out(arb.en1, gpio.Low)
	w.out(arb.en2, gpio.Low)
	if w.err != nil {
		return fmt.Errorf("board: could not initialize expression pedal lines: %w", w.err)
	}

	arb.mode = CVMode
	if arb.en1 == nil && arb.en2 == nil && arb.flags == [2]gpio.PinIn{} {
		// no expression pedal hardware.
		return nil
	}

	err := arb.register()
	if err != nil {
		arb.msg.Errorf("expression pedal flag IRQ failed: %+v", err)
		return nil
	}
	arb.msg.Infof("expression pedal flag IRQ setup ok")
	return nil
}

func (arb *Arbiter) register() error {
	arb.irq = false
	for i, pin := range arb.flags {
		if pin == nil {
			return fmt.Errorf("board: no flag line %d: %w", i+1, ErrIRQRegistration)
		}
		err := pin.In(gpio.PullDown, gpio.RisingEdge)
		if err != nil {
			return fmt.Errorf("board: flag line %s: %v: %w", pin, err, ErrIRQRegistration)
		}
	}
	arb.irq = true
	return nil
}

// IRQ reports whether edge detection is registered on the flag lines.
func (arb *Arbiter) IRQ() bool {
	arb.mu.Lock()
	defer arb.mu.Unlock()
	return arb.irq
}

// Mode returns the current mode.
func (arb *Arbiter) Mode() Mode {
	arb.mu.Lock()
	defer arb.mu.Unlock()
	return arb.mode
}

// Side returns the remembered expression pedal side.
func (arb *Arbiter) Side() Side {
	arb.mu.Lock()
	defer arb.mu.Unlock()
	return arb.side
}

// Events returns the number of flag events handled so far.
func (arb *Arbiter) Events() int {
	arb.mu.Lock()
	defer arb.mu.Unlock()
	return arb.events
}

// SetMode switches between the CV and expression pedal modes.
// Entering the expression pedal mode re-selects the remembered side.
// On a line failure, the previous mode is kept.
func (arb *Arbiter) SetMode(m Mode) error {
	arb.mu.Lock()
	defer arb.mu.Unlock()

	var (
		w    writer
		prev = arb.mode
	)
	switch m {
	case CVMode:
		arb.mode = CVMode
		w.out(arb.en1, gpio.Low)
		w.out(arb.en2, gpio.Low)
	case ExpPedalMode:
		arb.mode = ExpPedalMode
		arb.selectSide(&w, arb.side)
	default:
		return fmt.Errorf("board: invalid mode %d: %w", m, ErrOutOfRange)
	}

	if w.err != nil {
		arb.mode = prev
		return fmt.Errorf("board: could not set %s mode: %w", m, w.err)
	}
	return nil
}

// SetSide selects the expression pedal contact carrying the signal.
// Outside of the expression pedal mode, the side is only remembered.
func (arb *Arbiter) SetSide(s Side) error {
	switch s {
	case SignalOnTip, SignalOnRing:
	default:
		return fmt.Errorf("board: invalid side %d: %w", s, ErrOutOfRange)
	}

	arb.mu.Lock()
	defer arb.mu.Unlock()

	var (
		w    writer
		prev = arb.side
	)
	arb.selectSide(&w, s)
	if w.err != nil {
		arb.side = prev
		return fmt.Errorf("board: could not select %s side: %w", s, w.err)
	}
	return nil
}

// selectSide drives the enable lines for side s, deasserting one line
// before asserting the other.
func (arb *Arbiter) selectSide(w *writer, s Side) {
	arb.side = s
	if arb.mode != ExpPedalMode || arb.en1 == nil || arb.en2 == nil {
		return
	}
	if !arb.irq {
		arb.msg.Debugf("select %s side ignored: no expression pedal flag IRQ", s)
		return
	}

	switch s {
	case SignalOnTip:
		w.out(arb.en1, gpio.Low)
		w.out(arb.en2, gpio.High)
	case SignalOnRing:
		w.out(arb.en2, gpio.Low)
		w.out(arb.en1, gpio.High)
	}
}

// Event handles a flag edge: the arbiter falls back to the CV mode with
// both enable lines low, whatever its prior state.
// The mode is left untouched when the enable lines could not be driven.
func (arb *Arbiter) Event() error {
	arb.mu.Lock()
	defer arb.mu.Unlock()

	arb.events++
	arb.msg.Infof(
		"expression pedal flag triggered (values are %v %v)",
		read(arb.flags[0]), read(arb.flags[1]),
	)

	var w writer
	w.out(arb.en1, gpio.Low)
	w.out(arb.en2, gpio.Low)
	if w.err != nil {
		return fmt.Errorf("board: could not handle flag event: %w", w.err)
	}
	arb.mode = CVMode
	return nil
}

// Run watches both flag lines for rising edges until ctx is done.
// Run returns immediately when edge detection is not registered.
func (arb *Arbiter) Run(ctx context.Context) error {
	if !arb.IRQ() {
		return nil
	}

	grp, ctx := errgroup.WithContext(ctx)
	for _, pin := range arb.flags {
		pin := pin
		grp.Go(func() error {
			return arb.watch(ctx, pin)
		})
	}
	return grp.Wait()
}

func (arb *Arbiter) watch(ctx context.Context, pin gpio.PinIn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !pin.WaitForEdge(arb.period) {
			continue
		}
		err := arb.Event()
		if err != nil {
			arb.msg.Errorf("could not handle edge on %s: %+v", pin, err)
			return err
		}
	}
}

func read(pin gpio.PinIn) gpio.Level {
	if pin == nil {
		return gpio.Low
	}
	return pin.Read()
}
