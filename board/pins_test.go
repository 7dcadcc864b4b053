// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package board

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/go-daq/tdaq/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// write is a recorded pin write.
type write struct {
	name string
	lvl  gpio.Level
}

func (w write) String() string {
	v := 0
	if w.lvl {
		v = 1
	}
	return fmt.Sprintf("%s=%d", w.name, v)
}

type trace struct {
	mu sync.Mutex
	ws []write
}

func (tr *trace) add(name string, lvl gpio.Level) {
	tr.mu.Lock()
	tr.ws = append(tr.ws, write{name, lvl})
	tr.mu.Unlock()
}

func (tr *trace) reset() {
	tr.mu.Lock()
	tr.ws = nil
	tr.mu.Unlock()
}

func (tr *trace) writes() []write {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]write(nil), tr.ws...)
}

func (tr *trace) String() string {
	ws := tr.writes()
	o := make([]string, len(ws))
	for i, w := range ws {
		o[i] = w.String()
	}
	return strings.Join(o, " ")
}

// recPin records every successful write into its trace.
// Writes fail while err is set.
type recPin struct {
	*gpiotest.Pin
	tr  *trace
	err error
}

func (p *recPin) Out(l gpio.Level) error {
	if p.err != nil {
		return p.err
	}
	p.tr.add(p.N, l)
	return p.Pin.Out(l)
}

// testBoard is a set of fake lines.
type testBoard struct {
	tr   trace
	pins map[string]*recPin
}

// newTestBoard creates fake lines for all the board lines but the
// skipped ones. Flag lines get edge channels when irq is true.
func newTestBoard(irq bool, skip ...Line) *testBoard {
	tb := &testBoard{pins: make(map[string]*recPin)}
	for i := Line(0); i < nLines; i++ {
		if contains(skip, i) {
			continue
		}
		p := &gpiotest.Pin{N: i.String(), Num: int(i)}
		if i.isInput() && irq {
			p.EdgesChan = make(chan gpio.Level, 4)
		}
		tb.pins[p.N] = &recPin{Pin: p, tr: &tb.tr}
	}
	return tb
}

func (tb *testBoard) acquire(name string) (gpio.PinIO, error) {
	p, ok := tb.pins[name]
	if !ok {
		return nil, fmt.Errorf("no pin %q: %w", name, ErrPinUnavailable)
	}
	return p, nil
}

func (tb *testBoard) level(l Line) gpio.Level {
	return tb.pins[l.String()].Read()
}

// breaks makes all writes to line l fail with err (or succeed again, with nil).
func (tb *testBoard) breaks(l Line, err error) {
	tb.pins[l.String()].err = err
}

func (tb *testBoard) edge(l Line) {
	tb.pins[l.String()].EdgesChan <- gpio.High
}

func (tb *testBoard) open(t *testing.T, opts ...Option) *Board {
	t.Helper()
	opts = append([]Option{
		WithAcquirer(tb.acquire),
		WithMsgStream(quiet()),
	}, opts...)
	brd, err := New(opts...)
	if err != nil {
		t.Fatalf("could not create board: %+v", err)
	}
	tb.tr.reset()
	return brd
}

func contains(lines []Line, l Line) bool {
	for _, v := range lines {
		if v == l {
			return true
		}
	}
	return false
}

func quiet() log.MsgStream {
	return log.NewMsgStream("board", log.LvlError, io.Discard)
}

func ws(vs ...interface{}) []write {
	o := make([]write, 0, len(vs)/2)
	for i := 0; i < len(vs); i += 2 {
		o = append(o, write{vs[i].(Line).String(), vs[i+1].(gpio.Level)})
	}
	return o
}

func TestAcquirePins(t *testing.T) {
	for _, tc := range []struct {
		name string
		skip []Line
		init bool
	}{
		{name: "all", init: true},
		{name: "no-bypass", skip: []Line{LineBypassLeft, LineBypassRight}, init: true},
		{name: "no-exp-pedal", skip: []Line{LineExpEnable1, LineExpEnable2, LineExpFlag1, LineExpFlag2}, init: true},
		{name: "no-clk", skip: []Line{LineHeadphoneClk}, init: false},
		{name: "no-gain-left2", skip: []Line{LineGainLeft2}, init: false},
		{name: "no-gain-right1", skip: []Line{LineGainRight1}, init: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tb := newTestBoard(true, tc.skip...)
			ps := AcquirePins(tb.acquire, nil, quiet())
			if got, want := ps.Initialized, tc.init; got != want {
				t.Fatalf("invalid initialized flag: got=%v, want=%v", got, want)
			}
			for i := Line(0); i < nLines; i++ {
				got := ps.Pin(i) != nil
				want := !contains(tc.skip, i)
				if got != want {
					t.Fatalf("invalid line %s: got=%v, want=%v", i, got, want)
				}
			}
		})
	}
}

func TestAcquirePinsInitialLevels(t *testing.T) {
	tb := newTestBoard(true)
	_ = AcquirePins(tb.acquire, nil, quiet())
	for i := Line(0); i < nLines; i++ {
		if i.isInput() {
			continue
		}
		if got, want := tb.level(i), i.initial(); got != want {
			t.Fatalf("invalid initial level for %s: got=%v, want=%v", i, got, want)
		}
	}
	if got, want := tb.level(LineBypassLeft), GPIOBypass; got != want {
		t.Fatalf("invalid bypass level: got=%v, want=%v", got, want)
	}
}

func TestAcquirePinsRenamed(t *testing.T) {
	tb := newTestBoard(true)
	p := tb.pins[LineGainLeft1.String()]
	delete(tb.pins, LineGainLeft1.String())
	p.N = "GPIO17"
	tb.pins[p.N] = p

	ps := AcquirePins(tb.acquire, nil, quiet())
	if ps.Initialized {
		t.Fatalf("pin set should not be initialized")
	}

	ps = AcquirePins(tb.acquire, map[Line]string{LineGainLeft1: "GPIO17"}, quiet())
	if !ps.Initialized {
		t.Fatalf("pin set should be initialized")
	}
	if got, want := ps.Pin(LineGainLeft1).Name(), "GPIO17"; got != want {
		t.Fatalf("invalid pin: got=%q, want=%q", got, want)
	}
}

func TestLineByName(t *testing.T) {
	for i := Line(0); i < nLines; i++ {
		l, ok := LineByName(i.String())
		if !ok || l != i {
			t.Fatalf("could not find line %s", i)
		}
	}
	if _, ok := LineByName("gpio42"); ok {
		t.Fatalf("unexpected line")
	}
	if got, want := Line(-1).String(), "Line(-1)"; got != want {
		t.Fatalf("invalid name: got=%q, want=%q", got, want)
	}
}

func TestWriter(t *testing.T) {
	var (
		tr  trace
		p1  = &recPin{Pin: &gpiotest.Pin{N: "p1"}, tr: &tr}
		bad = &failPin{Pin: gpiotest.Pin{N: "bad"}}
		p2  = &recPin{Pin: &gpiotest.Pin{N: "p2"}, tr: &tr}
		w   writer
	)
	w.out(p1, gpio.High)
	w.out(nil, gpio.High)
	w.out(bad, gpio.High)
	w.out(p2, gpio.High)

	if w.err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := tr.writes(), []write{{"p1", gpio.High}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid writes:\ngot= %v\nwant=%v", got, want)
	}
}

type failPin struct {
	gpiotest.Pin
}

func (p *failPin) Out(l gpio.Level) error {
	return fmt.Errorf("failPin: could not drive %v", l)
}
