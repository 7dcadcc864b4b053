// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package clock resolves the codec clock dividers from a master clock
// frequency and a sample rate.
package clock // import "github.com/go-lpc/codec/clock"

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnsupportedRate = errors.New("clock: unsupported master clock/sample rate")
	ErrInvalidClock    = errors.New("clock: invalid master clock")
)

// Entry holds the codec settings for a master clock and sample rate pair.
type Entry struct {
	MCLK uint32 // master clock frequency, in Hz
	Rate uint32 // sample rate, in Hz
	FM   uint8  // functional mode (0: single, 1: double, 2: quad speed)
	Div  uint8  // master clock divider selector, in [0,4]
}

// Table lists every supported (MCLK, Rate) pair.
// Lookups are exact-match only.
var Table = [...]Entry{
	// 32k
	{8192000, 32000, 0, 0},
	{12288000, 32000, 0, 1},
	{16384000, 32000, 0, 2},
	{24576000, 32000, 0, 3},
	{32768000, 32000, 0, 4},

	// 44.1k
	{11289600, 44100, 0, 0},
	{16934400, 44100, 0, 1},
	{22579200, 44100, 0, 2},
	{33868000, 44100, 0, 3},
	{45158400, 44100, 0, 4},

	// 48k
	{12288000, 48000, 0, 0},
	{18432000, 48000, 0, 1},
	{24576000, 48000, 0, 2},
	{36864000, 48000, 0, 3},
	{49152000, 48000, 0, 4},

	// 64k
	{8192000, 64000, 1, 0},
	{12288000, 64000, 1, 1},
	{16934400, 64000, 1, 2},
	{24576000, 64000, 1, 3},
	{32768000, 64000, 1, 4},

	// 88.2k
	{11289600, 88200, 1, 0},
	{16934400, 88200, 1, 1},
	{22579200, 88200, 1, 2},
	{33868000, 88200, 1, 3},
	{45158400, 88200, 1, 4},

	// 96k
	{12288000, 96000, 1, 0},
	{18432000, 96000, 1, 1},
	{24576000, 96000, 1, 2},
	{36864000, 96000, 1, 3},
	{49152000, 96000, 1, 4},

	// 128k
	{8192000, 128000, 2, 0},
	{12288000, 128000, 2, 1},
	{16934400, 128000, 2, 2},
	{24576000, 128000, 2, 3},
	{32768000, 128000, 2, 4},

	// 176.4k
	{11289600, 176400, 2, 0},
	{16934400, 176400, 2, 1},
	{22579200, 176400, 2, 2},
	{33868000, 176400, 2, 3},
	{49152000, 176400, 2, 4},

	// 192k
	{12288000, 192000, 2, 0},
	{18432000, 192000, 2, 1},
	{24576000, 192000, 2, 2},
	{36864000, 192000, 2, 3},
	{49152000, 192000, 2, 4},
}

// Resolve returns the table entry matching exactly mclk and rate.
func Resolve(mclk, rate uint32) (Entry, error) {
	for _, e := range Table {
		if e.MCLK == mclk && e.Rate == rate {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf(
		"clock: could not resolve mclk=%d Hz, rate=%d Hz: %w",
		mclk, rate, ErrUnsupportedRate,
	)
}

// Supported reports whether mclk appears in at least one table entry.
func Supported(mclk uint32) bool {
	for _, e := range Table {
		if e.MCLK == mclk {
			return true
		}
	}
	return false
}

// Rates returns the sorted list of sample rates supported with mclk.
func Rates(mclk uint32) []uint32 {
	var rates []uint32
	for _, e := range Table {
		if e.MCLK == mclk {
			rates = append(rates, e.Rate)
		}
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })
	return rates
}

// Clock holds the system clock currently fed to the codec.
// The zero value is an unset clock.
type Clock struct {
	mu   sync.RWMutex
	mclk uint32
}

// Set sets the master clock frequency.
// A zero freq is ignored.
// Setting an unknown frequency fails and clears the current clock.
func (clk *Clock) Set(freq uint32) error {
	if freq == 0 {
		return nil
	}

	clk.mu.Lock()
	defer clk.mu.Unlock()

	if !Supported(freq) {
		clk.mclk = 0
		return fmt.Errorf("clock: could not set master clock to %d Hz: %w", freq, ErrInvalidClock)
	}
	clk.mclk = freq
	return nil
}

// MCLK returns the current master clock frequency, or 0 if unset.
func (clk *Clock) MCLK() uint32 {
	clk.mu.RLock()
	defer clk.mu.RUnlock()
	return clk.mclk
}

// ResolveForRate returns the entry for the current master clock and rate.
func (clk *Clock) ResolveForRate(rate uint32) (Entry, error) {
	mclk := clk.MCLK()
	if mclk == 0 {
		return Entry{}, fmt.Errorf("clock: no master clock set for rate=%d Hz: %w", rate, ErrUnsupportedRate)
	}
	return Resolve(mclk, rate)
}
