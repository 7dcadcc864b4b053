// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// Channel is an input/output channel of the board.
type Channel int

const (
	Left Channel = iota
	Right
)

func (ch Channel) String() string {
	switch ch {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("Channel(%d)", int(ch))
}

func (ch Channel) valid() bool { return ch == Left || ch == Right }

// MaxGainStage is the highest gain-stage selector value.
const MaxGainStage = 3

// gainTable maps a gain-stage selector to the levels of the two
// gain-stage lines of a channel.
var gainTable = [MaxGainStage + 1][2]gpio.Level{
	{gpio.High, gpio.High},
	{gpio.High, gpio.Low},
	{gpio.Low, gpio.High},
	{gpio.Low, gpio.Low},
}

// Encoder drives the gain-stage, true-bypass and headphone/CV lines.
// Lines are driven on every call, whether the value changed or not.
// A setter only records its value once the lines were driven.
type Encoder struct {
	mu sync.Mutex

	gain   [2][2]gpio.PinOut
	bypass [2]gpio.PinOut
	hpcv   gpio.PinOut

	stages   [2]int
	bypassed [2]bool
	cv       bool
}

func newEncoder(ps *PinSet) *Encoder {
	return &Encoder{
		gain: [2][2]gpio.PinOut{
			Left:  {ps.out(LineGainLeft1), ps.out(LineGainLeft2)},
			Right: {ps.out(LineGainRight1), ps.out(LineGainRight2)},
		},
		bypass:   [2]gpio.PinOut{ps.out(LineBypassLeft), ps.out(LineBypassRight)},
		hpcv:     ps.out(LineHeadphoneCV),
		bypassed: [2]bool{true, true},
	}
}

// init drives the attach-time levels.
func (enc *Encoder) init() error {
	enc.mu.Lock()
	defer enc.mu.Unlock()

	var w writer
	w.out(enc.hpcv, level(enc.cv))
	for _, ch := range []Channel{Left, Right} {
		enc.stages[ch] = 0
		w.out(enc.gain[ch][0], gainTable[0][0])
		w.out(enc.gain[ch][1], gainTable[0][1])
	}
	if w.err != nil {
		return fmt.Errorf("board: could not initialize encoder lines: %w", w.err)
	}
	return nil
}

// SetGainStage selects the gain stage of channel ch.
func (enc *Encoder) SetGainStage(ch Channel, stage int) error {
	if !ch.valid() {
		return fmt.Errorf("board: could not set gain stage: %w", ErrInvalidChannel)
	}
	if stage < 0 || stage > MaxGainStage {
		return fmt.Errorf("board: invalid %s gain stage %d: %w", ch, stage, ErrOutOfRange)
	}

	enc.mu.Lock()
	defer enc.mu.Unlock()

	var w writer
	w.out(enc.gain[ch][0], gainTable[stage][0])
	w.out(enc.gain[ch][1], gainTable[stage][1])
	if w.err != nil {
		return fmt.Errorf("board: could not set %s gain stage %d: %w", ch, stage, w.err)
	}
	enc.stages[ch] = stage
	return nil
}

// GainStage returns the gain stage of channel ch.
func (enc *Encoder) GainStage(ch Channel) int {
	if !ch.valid() {
		return 0
	}
	enc.mu.Lock()
	defer enc.mu.Unlock()
	return enc.stages[ch]
}

// SetBypass engages or releases the true-bypass relay of channel ch.
// The relay input is active-low: engaged drives GPIOBypass.
func (enc *Encoder) SetBypass(ch Channel, engaged bool) error {
	if !ch.valid() {
		return fmt.Errorf("board: could not set true-bypass: %w", ErrInvalidChannel)
	}

	enc.mu.Lock()
	defer enc.mu.Unlock()

	lvl := GPIOProcess
	if engaged {
		lvl = GPIOBypass
	}

	var w writer
	w.out(enc.bypass[ch], lvl)
	if w.err != nil {
		return fmt.Errorf("board: could not set %s true-bypass=%v: %w", ch, engaged, w.err)
	}
	enc.bypassed[ch] = engaged
	return nil
}

// Bypass reports whether the true-bypass of channel ch is engaged.
func (enc *Encoder) Bypass(ch Channel) bool {
	if !ch.valid() {
		return false
	}
	enc.mu.Lock()
	defer enc.mu.Unlock()
	return enc.bypassed[ch]
}

// SetHeadphoneCV selects the CV output (true) or headphone output (false).
func (enc *Encoder) SetHeadphoneCV(cv bool) error {
	enc.mu.Lock()
	defer enc.mu.Unlock()

	var w writer
	w.out(enc.hpcv, level(cv))
	if w.err != nil {
		return fmt.Errorf("board: could not set headphone/cv mode=%v: %w", cv, w.err)
	}
	enc.cv = cv
	return nil
}

// HeadphoneCV reports whether the CV output is selected.
func (enc *Encoder) HeadphoneCV() bool {
	enc.mu.Lock()
	defer enc.mu.Unlock()
	return enc.cv
}

func level(v bool) gpio.Level {
	if v {
		return gpio.High
	}
	return gpio.Low
}
