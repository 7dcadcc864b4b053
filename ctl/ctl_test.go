// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctl

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"testing"

	"github.com/go-daq/tdaq/log"
	"github.com/go-lpc/codec/board"
	"github.com/go-lpc/codec/cs42xx"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func quiet(name string) log.MsgStream {
	return log.NewMsgStream(name, log.LvlError, io.Discard)
}

type fakeBus struct {
	regs [256]uint8
	nw   int
}

func (bus *fakeBus) ReadReg(reg uint8) (uint8, error) { return bus.regs[reg], nil }
func (bus *fakeBus) WriteReg(reg, v uint8) error {
	bus.nw++
	bus.regs[reg] = v
	return nil
}

func newCodec(t *testing.T, v cs42xx.Variant) (*cs42xx.Codec, *fakeBus) {
	t.Helper()
	bus := &fakeBus{}
	bus.regs[cs42xx.RegChipID] = v.ChipID | 1
	c, err := cs42xx.New(bus, v, cs42xx.WithMsgStream(quiet(v.Name)))
	if err != nil {
		t.Fatalf("could not create codec: %+v", err)
	}
	return c, bus
}

// newBoard creates a board with fake lines, skipping the named lines.
func newBoard(t *testing.T, skip ...string) (*board.Board, map[string]*gpiotest.Pin) {
	t.Helper()
	pins := make(map[string]*gpiotest.Pin)
	acquire := func(name string) (gpio.PinIO, error) {
		for _, v := range skip {
			if v == name {
				return nil, fmt.Errorf("no pin %q: %w", name, board.ErrPinUnavailable)
			}
		}
		p := &gpiotest.Pin{N: name}
		if name == board.LineExpFlag1.String() || name == board.LineExpFlag2.String() {
			p.EdgesChan = make(chan gpio.Level, 1)
		}
		pins[name] = p
		return p, nil
	}
	brd, err := board.New(
		board.WithAcquirer(acquire),
		board.WithMsgStream(quiet("board")),
	)
	if err != nil {
		t.Fatalf("could not create board: %+v", err)
	}
	return brd, pins
}

// brkPin is a line whose writes fail while err is set.
type brkPin struct {
	*gpiotest.Pin
	err error
	nw  int
}

func (p *brkPin) Out(l gpio.Level) error {
	if p.err != nil {
		return p.err
	}
	p.nw++
	return p.Pin.Out(l)
}

func TestBoardPutLineFailure(t *testing.T) {
	broken := errors.New("line broken")
	gain := &brkPin{Pin: &gpiotest.Pin{N: board.LineGainLeft1.String()}}
	acquire := func(name string) (gpio.PinIO, error) {
		if name == gain.N {
			return gain, nil
		}
		p := &gpiotest.Pin{N: name}
		if name == board.LineExpFlag1.String() || name == board.LineExpFlag2.String() {
			p.EdgesChan = make(chan gpio.Level, 1)
		}
		return p, nil
	}
	brd, err := board.New(
		board.WithAcquirer(acquire),
		board.WithMsgStream(quiet("board")),
	)
	if err != nil {
		t.Fatalf("could not create board: %+v", err)
	}
	defer brd.Close()

	sfc, err := NewSurface(BoardControls(brd)...)
	if err != nil {
		t.Fatalf("could not create surface: %+v", err)
	}

	gain.err = broken
	changed, err := sfc.Put(LeftGainStage, 2)
	if !errors.Is(err, broken) {
		t.Fatalf("invalid error: got=%+v, want=%+v", err, broken)
	}
	if changed {
		t.Fatalf("failed put reported as changed")
	}
	v, err := sfc.Get(LeftGainStage)
	if err != nil {
		t.Fatalf("could not get value: %+v", err)
	}
	if v != 0 {
		t.Fatalf("value recorded after failure: got=%d, want=0", v)
	}

	gain.err = nil
	gain.nw = 0
	changed, err = sfc.Put(LeftGainStage, 2)
	if err != nil {
		t.Fatalf("could not retry: %+v", err)
	}
	if !changed {
		t.Fatalf("retry not reported as changed")
	}
	if gain.nw != 1 {
		t.Fatalf("line not driven on retry: %d writes", gain.nw)
	}
	if got, want := gain.Read(), gpio.Low; got != want {
		t.Fatalf("invalid level: got=%v, want=%v", got, want)
	}
	if v, _ := sfc.Get(LeftGainStage); v != 2 {
		t.Fatalf("invalid value: got=%d, want=2", v)
	}
}

func names(infos []Info) []string {
	o := make([]string, len(infos))
	for i, info := range infos {
		o[i] = info.Name
	}
	return o
}

func TestBoardControls(t *testing.T) {
	for _, tc := range []struct {
		name string
		skip []string
		want []string
	}{
		{
			name: "duox",
			want: []string{
				CVExpPedalMode, ExpPedalMode, HeadphoneVolume, HeadphoneCVMode,
				LeftGainStage, LeftBypass, RightGainStage, RightBypass,
			},
		},
		{
			name: "duo",
			skip: []string{
				"true_bypass_left", "true_bypass_right", "headphone_cv_mode",
				"exp_enable1", "exp_enable2", "exp_flag1", "exp_flag2",
			},
			want: []string{
				HeadphoneVolume, LeftGainStage, RightGainStage,
			},
		},
		{
			name: "simulated",
			skip: []string{"headphone_clk"},
			want: []string{
				CVExpPedalMode, ExpPedalMode, HeadphoneVolume, HeadphoneCVMode,
				LeftGainStage, LeftBypass, RightGainStage, RightBypass,
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			brd, _ := newBoard(t, tc.skip...)
			sfc, err := NewSurface(BoardControls(brd)...)
			if err != nil {
				t.Fatalf("could not create surface: %+v", err)
			}
			if got := names(sfc.Infos()); !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid controls:\ngot= %q\nwant=%q", got, tc.want)
			}
		})
	}
}

func TestBoardPut(t *testing.T) {
	brd, pins := newBoard(t)
	sfc, err := NewSurface(BoardControls(brd)...)
	if err != nil {
		t.Fatalf("could not create surface: %+v", err)
	}

	for _, tc := range []struct {
		name    string
		v       int
		changed bool
		err     error
	}{
		{HeadphoneVolume, 11, true, nil},
		{HeadphoneVolume, 11, false, nil},
		{HeadphoneVolume, 16, false, ErrOutOfRange},
		{HeadphoneVolume, -1, false, ErrOutOfRange},
		{LeftGainStage, 2, true, nil},
		{LeftGainStage, 2, false, nil},
		{RightGainStage, 4, false, ErrOutOfRange},
		{RightGainStage, 3, true, nil},
		{LeftBypass, 1, false, nil},
		{LeftBypass, 0, true, nil},
		{RightBypass, 2, false, ErrOutOfRange},
		{HeadphoneCVMode, 1, true, nil},
		{ExpPedalMode, 1, true, nil},
		{CVExpPedalMode, 1, true, nil},
		{CVExpPedalMode, 1, false, nil},
		{"Master Volume", 1, false, ErrUnknown},
	} {
		t.Run(tc.name, func(t *testing.T) {
			changed, err := sfc.Put(tc.name, tc.v)
			if !errors.Is(err, tc.err) {
				t.Fatalf("invalid error: got=%+v, want=%+v", err, tc.err)
			}
			if changed != tc.changed {
				t.Fatalf("invalid changed: got=%v, want=%v", changed, tc.changed)
			}
			if tc.err != nil {
				return
			}
			v, err := sfc.Get(tc.name)
			if err != nil {
				t.Fatalf("could not get value: %+v", err)
			}
			if v != tc.v {
				t.Fatalf("invalid value: got=%d, want=%d", v, tc.v)
			}
		})
	}

	for _, tc := range []struct {
		name string
		want gpio.Level
	}{
		{"gain_stage_left1", gpio.Low},
		{"gain_stage_left2", gpio.High},
		{"gain_stage_right1", gpio.Low},
		{"gain_stage_right2", gpio.Low},
		{"true_bypass_left", board.GPIOProcess},
		{"true_bypass_right", board.GPIOBypass},
		{"headphone_cv_mode", gpio.High},
		{"exp_enable1", gpio.High},
		{"exp_enable2", gpio.Low},
	} {
		if got := pins[tc.name].Read(); got != tc.want {
			t.Fatalf("invalid level for %s: got=%v, want=%v", tc.name, got, tc.want)
		}
	}

	_ = brd.Arbiter().Event()
	v, err := sfc.Get(CVExpPedalMode)
	if err != nil {
		t.Fatalf("could not get value: %+v", err)
	}
	if v != 0 {
		t.Fatalf("flag event did not reset the mode control")
	}
}

func TestCodecControls(t *testing.T) {
	for _, v := range []cs42xx.Variant{cs42xx.CS4245, cs42xx.CS4265} {
		t.Run(v.Name, func(t *testing.T) {
			c, bus := newCodec(t, v)
			sfc, err := NewSurface(CodecControls(c)...)
			if err != nil {
				t.Fatalf("could not create surface: %+v", err)
			}

			want := []string{DACVolume, Loopback, PGAGain}
			if v.AuxOut {
				want = []string{AuxOutMux, DACVolume, Loopback, PGAGain}
			}
			if got := names(sfc.Infos()); !reflect.DeepEqual(got, want) {
				t.Fatalf("invalid controls:\ngot= %q\nwant=%q", got, want)
			}

			// the MOD Duo profile enables the loopback.
			loop := bus.regs[cs42xx.RegSigSel]&0x02 == 0

			type putCase struct {
				name    string
				v       int
				changed bool
				regs    map[uint8]uint8
			}
			tcs := []putCase{
				{DACVolume, 0x00, true, map[uint8]uint8{v.DACVolA: 0xff, v.DACVolB: 0xff}},
				{DACVolume, 0x10, true, map[uint8]uint8{v.DACVolA: 0xef, v.DACVolB: 0xef}},
				{DACVolume, 0x10, false, nil},
				{PGAGain, 0, true, map[uint8]uint8{cs42xx.RegPGACtlA: 0x28, cs42xx.RegPGACtlB: 0x28}},
				{PGAGain, 24, true, map[uint8]uint8{cs42xx.RegPGACtlA: 0x00, cs42xx.RegPGACtlB: 0x00}},
				{PGAGain, 48, true, map[uint8]uint8{cs42xx.RegPGACtlA: 0x18, cs42xx.RegPGACtlB: 0x18}},
				{Loopback, 1, loop, nil},
			}
			if v.AuxOut {
				tcs = append(tcs, putCase{AuxOutMux, 2, true, nil}, putCase{AuxOutMux, 1, true, nil})
			}
			for _, tc := range tcs {
				changed, err := sfc.Put(tc.name, tc.v)
				if err != nil {
					t.Fatalf("could not put %q=%d: %+v", tc.name, tc.v, err)
				}
				if changed != tc.changed {
					t.Fatalf("%q=%d: invalid changed: got=%v, want=%v", tc.name, tc.v, changed, tc.changed)
				}
				got, err := sfc.Get(tc.name)
				if err != nil {
					t.Fatalf("could not get %q: %+v", tc.name, err)
				}
				if got != tc.v {
					t.Fatalf("invalid %q value: got=%d, want=%d", tc.name, got, tc.v)
				}
				for reg, want := range tc.regs {
					if got := bus.regs[reg]; got != want {
						t.Fatalf("%q=%d: invalid reg 0x%x: got=0x%x, want=0x%x", tc.name, tc.v, reg, got, want)
					}
				}
			}

			sig := bus.regs[cs42xx.RegSigSel]
			if got, want := (sig>>cs42xx.SigSelAuxOut)&3, uint8(1); v.AuxOut && got != want {
				t.Fatalf("invalid aux-out field: got=%d, want=%d", got, want)
			}
			if _, err := sfc.Get(AuxOutMux); v.AuxOut == errors.Is(err, ErrUnknown) {
				t.Fatalf("invalid %q lookup: %+v", AuxOutMux, err)
			}
			if got, want := (sig>>cs42xx.SigSelLoop)&1, uint8(1); got != want {
				t.Fatalf("invalid loopback field: got=%d, want=%d", got, want)
			}

			if _, err := sfc.Put(DACVolume, 0x100); !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("invalid error: %+v", err)
			}
			if _, err := sfc.Put(PGAGain, 49); !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("invalid error: %+v", err)
			}
		})
	}
}

func TestSurfaceDuplicate(t *testing.T) {
	brd, _ := newBoard(t)
	ctls := BoardControls(brd)
	_, err := NewSurface(append(ctls, ctls[0])...)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestSurfaceInfo(t *testing.T) {
	brd, _ := newBoard(t)
	sfc, err := NewSurface(BoardControls(brd)...)
	if err != nil {
		t.Fatalf("could not create surface: %+v", err)
	}
	for _, tc := range []struct {
		name string
		want Info
	}{
		{HeadphoneVolume, Info{HeadphoneVolume, Integer, 0, 15}},
		{LeftGainStage, Info{LeftGainStage, Integer, 0, 3}},
		{RightBypass, Info{RightBypass, Boolean, 0, 1}},
		{ExpPedalMode, Info{ExpPedalMode, Boolean, 0, 1}},
	} {
		got, err := sfc.Info(tc.name)
		if err != nil {
			t.Fatalf("could not get info: %+v", err)
		}
		if got != tc.want {
			t.Fatalf("invalid info:\ngot= %+v\nwant=%+v", got, tc.want)
		}
	}
	if _, err := sfc.Info("nope"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("invalid error: %+v", err)
	}
	if _, err := sfc.Get("nope"); !errors.Is(err, ErrUnknown) {
		t.Fatalf("invalid error: %+v", err)
	}
}
