// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"errors"
	"fmt"

	"github.com/go-daq/tdaq/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

var (
	ErrPinUnavailable  = errors.New("board: pin unavailable")
	ErrIRQRegistration = errors.New("board: could not register edge detection")
	ErrOutOfRange      = errors.New("board: value out of range")
	ErrInvalidChannel  = errors.New("board: invalid channel")
)

// Levels driven on the true-bypass relays.
const (
	GPIOBypass  = gpio.Low
	GPIOProcess = gpio.High
)

// Line identifies a digital line of the board.
type Line int

const (
	LineHeadphoneClk Line = iota
	LineHeadphoneDir
	LineGainLeft1
	LineGainLeft2
	LineGainRight1
	LineGainRight2
	LineHeadphoneCV
	LineExpEnable1
	LineExpEnable2
	LineExpFlag1
	LineExpFlag2
	LineBypassLeft
	LineBypassRight

	nLines
)

var lineNames = [nLines]string{
	LineHeadphoneClk: "headphone_clk",
	LineHeadphoneDir: "headphone_dir",
	LineGainLeft1:    "gain_stage_left1",
	LineGainLeft2:    "gain_stage_left2",
	LineGainRight1:   "gain_stage_right1",
	LineGainRight2:   "gain_stage_right2",
	LineHeadphoneCV:  "headphone_cv_mode",
	LineExpEnable1:   "exp_enable1",
	LineExpEnable2:   "exp_enable2",
	LineExpFlag1:     "exp_flag1",
	LineExpFlag2:     "exp_flag2",
	LineBypassLeft:   "true_bypass_left",
	LineBypassRight:  "true_bypass_right",
}

func (l Line) String() string {
	if l < 0 || l >= nLines {
		return fmt.Sprintf("Line(%d)", int(l))
	}
	return lineNames[l]
}

// LineByName returns the line with the provided default name.
func LineByName(name string) (Line, bool) {
	for i, n := range lineNames {
		if n == name {
			return Line(i), true
		}
	}
	return 0, false
}

// isInput reports whether l is a sense line.
func (l Line) isInput() bool {
	return l == LineExpFlag1 || l == LineExpFlag2
}

// initial returns the level l is driven to when acquired.
func (l Line) initial() gpio.Level {
	switch l {
	case LineBypassLeft, LineBypassRight:
		return GPIOBypass
	}
	return gpio.High
}

// required lines. Without any of them the pin set is not initialized.
var required = []Line{
	LineHeadphoneClk, LineHeadphoneDir,
	LineGainLeft1, LineGainLeft2,
	LineGainRight1, LineGainRight2,
}

// Acquirer returns the pin registered under the provided name.
type Acquirer func(name string) (gpio.PinIO, error)

// ByName acquires pins from the periph.io GPIO registry.
func ByName(name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("board: no pin %q: %w", name, ErrPinUnavailable)
	}
	return p, nil
}

// PinSet is the bundle of lines acquired at attach time.
// Absent lines are nil.
type PinSet struct {
	Initialized bool

	pins [nLines]gpio.PinIO
}

// AcquirePins acquires all the board lines, using names to override the
// default line names. Outputs are driven to their initial level, sense
// lines are configured as inputs.
func AcquirePins(acquire Acquirer, names map[Line]string, msg log.MsgStream) *PinSet {
	ps := new(PinSet)
	for i := range ps.pins {
		line := Line(i)
		name := line.String()
		if v, ok := names[line]; ok {
			name = v
		}
		pin, err := acquire(name)
		if err == nil && pin == nil {
			err = fmt.Errorf("board: nil pin %q: %w", name, ErrPinUnavailable)
		}
		if err != nil {
			msg.Debugf("line %s absent: %+v", line, err)
			continue
		}

		if line.isInput() {
			err = pin.In(gpio.PullNoChange, gpio.NoEdge)
		} else {
			err = pin.Out(line.initial())
		}
		if err != nil {
			msg.Warnf("could not setup line %s (%s): %+v", line, name, err)
			continue
		}
		ps.pins[line] = pin
	}

	ps.Initialized = true
	for _, line := range required {
		if ps.pins[line] == nil {
			msg.Warnf("required line %s absent: pins disabled", line)
			ps.Initialized = false
		}
	}
	return ps
}

// Pin returns the pin acquired for line l, or nil when absent.
func (ps *PinSet) Pin(l Line) gpio.PinIO {
	if ps == nil || l < 0 || l >= nLines {
		return nil
	}
	return ps.pins[l]
}

// Has reports whether all the provided lines were acquired.
func (ps *PinSet) Has(lines ...Line) bool {
	for _, l := range lines {
		if ps.Pin(l) == nil {
			return false
		}
	}
	return true
}

// out returns the output for line l when pins are initialized, nil otherwise.
func (ps *PinSet) out(l Line) gpio.PinOut {
	if !ps.Initialized {
		return nil
	}
	p := ps.Pin(l)
	if p == nil {
		return nil
	}
	return p
}

// in returns the sense line l when pins are initialized, nil otherwise.
func (ps *PinSet) in(l Line) gpio.PinIn {
	if !ps.Initialized {
		return nil
	}
	p := ps.Pin(l)
	if p == nil {
		return nil
	}
	return p
}

// Halt stops all the acquired lines.
func (ps *PinSet) Halt() error {
	var err error
	for i, p := range ps.pins {
		if p == nil {
			continue
		}
		e := p.Halt()
		if e != nil && err == nil {
			err = fmt.Errorf("board: could not halt line %s: %w", Line(i), e)
		}
	}
	return err
}

// writer drives a sequence of output lines, keeping the first error.
type writer struct {
	err error
}

func (w *writer) out(pin gpio.PinOut, lvl gpio.Level) {
	if w.err != nil || pin == nil {
		return
	}
	err := pin.Out(lvl)
	if err != nil {
		w.err = fmt.Errorf("board: could not drive %s to %v: %w", pin, lvl, err)
	}
}
