// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package clock

import (
	"errors"
	"reflect"
	"testing"
)

func TestTable(t *testing.T) {
	if got, want := len(Table), 45; got != want {
		t.Fatalf("invalid table size: got=%d, want=%d", got, want)
	}

	type key struct{ mclk, rate uint32 }
	seen := make(map[key]bool)
	for _, e := range Table {
		k := key{e.MCLK, e.Rate}
		if seen[k] {
			t.Fatalf("duplicate entry (mclk=%d, rate=%d)", e.MCLK, e.Rate)
		}
		seen[k] = true
		if e.FM > 2 || e.Div > 4 {
			t.Fatalf("invalid entry %+v", e)
		}
	}
}

func TestResolve(t *testing.T) {
	for _, want := range Table {
		got, err := Resolve(want.MCLK, want.Rate)
		if err != nil {
			t.Fatalf("could not resolve %+v: %+v", want, err)
		}
		if got != want {
			t.Fatalf("invalid entry: got=%+v, want=%+v", got, want)
		}
	}

	for _, tc := range []struct {
		mclk, rate uint32
	}{
		{0, 48000},
		{12288000, 0},
		{12288000, 44100},   // wrong family
		{12288001, 48000},   // no interpolation
		{16384000, 64000},   // mclk only valid for 32k
		{24576000, 22050},   // unknown rate
		{45158400, 192000},  // no such pair
		{49152000, 4294967}, // garbage
	} {
		_, err := Resolve(tc.mclk, tc.rate)
		if !errors.Is(err, ErrUnsupportedRate) {
			t.Fatalf("mclk=%d, rate=%d: invalid error: %+v", tc.mclk, tc.rate, err)
		}
	}

	e, err := Resolve(16934400, 128000)
	if err != nil {
		t.Fatalf("could not resolve: %+v", err)
	}
	if got, want := e, (Entry{16934400, 128000, 2, 2}); got != want {
		t.Fatalf("invalid entry: got=%+v, want=%+v", got, want)
	}
}

func TestRates(t *testing.T) {
	got := Rates(12288000)
	want := []uint32{32000, 48000, 64000, 96000, 128000, 192000}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid rates:\ngot= %v\nwant=%v", got, want)
	}

	if got := Rates(1); got != nil {
		t.Fatalf("invalid rates: %v", got)
	}
}

func TestClock(t *testing.T) {
	var clk Clock

	_, err := clk.ResolveForRate(48000)
	if !errors.Is(err, ErrUnsupportedRate) {
		t.Fatalf("unset clock should not resolve: %+v", err)
	}

	err = clk.Set(12288000)
	if err != nil {
		t.Fatalf("could not set clock: %+v", err)
	}

	e, err := clk.ResolveForRate(48000)
	if err != nil {
		t.Fatalf("could not resolve: %+v", err)
	}
	if e.FM != 0 || e.Div != 0 {
		t.Fatalf("invalid entry: %+v", e)
	}

	err = clk.Set(0)
	if err != nil {
		t.Fatalf("zero freq should be ignored: %+v", err)
	}
	if got, want := clk.MCLK(), uint32(12288000); got != want {
		t.Fatalf("zero freq changed clock: got=%d, want=%d", got, want)
	}

	err = clk.Set(24576000)
	if err != nil {
		t.Fatalf("could not set clock: %+v", err)
	}
	e, err = clk.ResolveForRate(96000)
	if err != nil {
		t.Fatalf("could not resolve: %+v", err)
	}
	if got, want := e, (Entry{24576000, 96000, 1, 2}); got != want {
		t.Fatalf("invalid entry: got=%+v, want=%+v", got, want)
	}

	err = clk.Set(11111111)
	if !errors.Is(err, ErrInvalidClock) {
		t.Fatalf("invalid error: %+v", err)
	}
	if got := clk.MCLK(); got != 0 {
		t.Fatalf("rejected clock should clear the stored one: got=%d", got)
	}
	_, err = clk.ResolveForRate(96000)
	if !errors.Is(err, ErrUnsupportedRate) {
		t.Fatalf("stale clock reused: %+v", err)
	}
}
