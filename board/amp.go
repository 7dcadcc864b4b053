// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

const (
	// MaxVolume is the highest step of the headphone amplifier.
	// Each step is 3dB, step 11 is 0dB.
	MaxVolume = 15

	// resetPulses is the number of down pulses bringing the amplifier
	// to step 0 from any prior step.
	resetPulses = 16
)

// Amp drives the step counter of the external headphone amplifier
// through its direction and clock lines.
//
// The amplifier state can not be read back: a dropped pulse goes unnoticed
// until the next Reset.
type Amp struct {
	mu  sync.Mutex
	clk gpio.PinOut
	dir gpio.PinOut
	cur int
}

func newAmp(ps *PinSet) *Amp {
	return &Amp{
		clk: ps.out(LineHeadphoneClk),
		dir: ps.out(LineHeadphoneDir),
	}
}

// Reset brings the amplifier to step 0.
func (amp *Amp) Reset() error {
	amp.mu.Lock()
	defer amp.mu.Unlock()

	var w writer
	w.out(amp.dir, gpio.Low)
	amp.pulse(&w, resetPulses)
	amp.cur = 0

	if w.err != nil {
		return fmt.Errorf("board: could not reset headphone amplifier: %w", w.err)
	}
	return nil
}

// SetVolume moves the amplifier to the target step and returns the
// previous one. A target equal to the current step leaves all lines untouched.
func (amp *Amp) SetVolume(target int) (int, error) {
	if target < 0 || target > MaxVolume {
		return amp.Volume(), fmt.Errorf("board: invalid volume %d: %w", target, ErrOutOfRange)
	}

	amp.mu.Lock()
	defer amp.mu.Unlock()

	prev := amp.cur
	steps := target - prev
	if steps == 0 {
		return prev, nil
	}

	var w writer
	switch {
	case steps > 0:
		w.out(amp.dir, gpio.High)
	default:
		w.out(amp.dir, gpio.Low)
		steps = -steps
	}
	amp.pulse(&w, steps)
	if w.err != nil {
		return prev, fmt.Errorf("board: could not set volume %d -> %d: %w", prev, target, w.err)
	}
	amp.cur = target
	return prev, nil
}

// Volume returns the current amplifier step.
func (amp *Amp) Volume() int {
	amp.mu.Lock()
	defer amp.mu.Unlock()
	return amp.cur
}

// pulse clocks n pulses. The amplifier samples the direction line
// on the rising edge.
func (amp *Amp) pulse(w *writer, n int) {
	if amp.clk == nil {
		return
	}
	for i := 0; i < n; i++ {
		w.out(amp.clk, gpio.High)
		w.out(amp.clk, gpio.Low)
	}
}
