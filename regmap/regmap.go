// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regmap implements a cached map of 8-bit codec registers,
// accessed through an 8-bit addressed control bus.
//
// Registers are cached write-through. Volatile registers (e.g. status
// registers) are always read back from the hardware.
package regmap // import "github.com/go-lpc/codec/regmap"

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNotReadable = errors.New("regmap: register not readable")
	ErrNotWritable = errors.New("regmap: register not writable")
	ErrBusFailure  = errors.New("regmap: bus failure")
)

// Bus is the control-bus transport used to access the codec registers.
// Implementations must not retry failed transactions.
type Bus interface {
	ReadReg(reg uint8) (uint8, error)
	WriteReg(reg, v uint8) error
}

// BusError describes a failed bus transaction.
type BusError struct {
	Op  string // "read" or "write"
	Reg uint8
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("regmap: could not %s register 0x%02x: %+v", e.Op, e.Reg, e.Err)
}

func (e *BusError) Unwrap() error { return e.Err }

func (e *BusError) Is(target error) bool { return target == ErrBusFailure }

// Default is a power-on default register value.
type Default struct {
	Reg uint8
	Val uint8
}

// Config describes the register layout of a device.
type Config struct {
	MaxRegister uint8
	Defaults    []Default

	Readable  func(reg uint8) bool // nil means all registers up to MaxRegister
	Writeable func(reg uint8) bool // nil means all readable registers
	Volatile  func(reg uint8) bool // nil means no volatile register
}

type entry struct {
	val   uint8
	valid bool // value was read from or written to the hardware
	dirty bool // value differs from the power-on default
}

// Map is a cached register map.
type Map struct {
	mu    sync.Mutex
	bus   Bus
	cfg   Config
	cache [256]entry
	defs  [256]struct {
		val uint8
		ok  bool
	}
}

// New creates a register map on top of the provided bus.
func New(bus Bus, cfg Config) *Map {
	m := &Map{bus: bus, cfg: cfg}
	for _, d := range cfg.Defaults {
		m.defs[d.Reg].val = d.Val
		m.defs[d.Reg].ok = true
	}
	return m
}

func (m *Map) readable(reg uint8) bool {
	if reg > m.cfg.MaxRegister {
		return false
	}
	if m.cfg.Readable == nil {
		return true
	}
	return m.cfg.Readable(reg)
}

func (m *Map) writeable(reg uint8) bool {
	if !m.readable(reg) {
		return false
	}
	if m.cfg.Writeable == nil {
		return true
	}
	return m.cfg.Writeable(reg)
}

// Volatile reports whether reg bypasses the cache on reads.
func (m *Map) Volatile(reg uint8) bool {
	if m.cfg.Volatile == nil {
		return false
	}
	return m.cfg.Volatile(reg)
}

// Read returns the value of the register reg.
func (m *Map) Read(reg uint8) (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read(reg)
}

func (m *Map) read(reg uint8) (uint8, error) {
	if !m.readable(reg) {
		return 0, fmt.Errorf("regmap: could not read register 0x%02x: %w", reg, ErrNotReadable)
	}

	e := &m.cache[reg]
	if e.valid && !m.Volatile(reg) {
		return e.val, nil
	}

	v, err := m.bus.ReadReg(reg)
	if err != nil {
		return 0, &BusError{Op: "read", Reg: reg, Err: err}
	}
	m.store(reg, v)
	return v, nil
}

// Write writes v to the register reg and updates the cache.
func (m *Map) Write(reg, v uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(reg, v)
}

func (m *Map) write(reg, v uint8) error {
	if !m.readable(reg) {
		return fmt.Errorf("regmap: could not write register 0x%02x: %w", reg, ErrNotReadable)
	}
	if !m.writeable(reg) {
		return fmt.Errorf("regmap: could not write register 0x%02x: %w", reg, ErrNotWritable)
	}

	err := m.bus.WriteReg(reg, v)
	if err != nil {
		return &BusError{Op: "write", Reg: reg, Err: err}
	}
	m.store(reg, v)
	return nil
}

func (m *Map) store(reg, v uint8) {
	e := &m.cache[reg]
	e.val = v
	e.valid = true
	e.dirty = !m.defs[reg].ok || m.defs[reg].val != v
}

// UpdateBits performs a read-modify-write of the bits of reg selected by mask.
func (m *Map) UpdateBits(reg, mask, v uint8) error {
	_, err := m.UpdateBitsCheck(reg, mask, v)
	return err
}

// UpdateBitsCheck is like UpdateBits and reports whether the register value
// was modified. No bus write is issued when the value does not change.
func (m *Map) UpdateBitsCheck(reg, mask, v uint8) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	orig, err := m.read(reg)
	if err != nil {
		return false, err
	}

	val := (orig &^ mask) | (v & mask)
	if val == orig {
		return false, nil
	}

	err = m.write(reg, val)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Cached returns the cached value of reg, if any.
func (m *Map) Cached(reg uint8) (uint8, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.cache[reg]
	if !e.valid || m.Volatile(reg) {
		return 0, false
	}
	return e.val, true
}

// Default returns the power-on default value of reg, if any.
func (m *Map) Default(reg uint8) (uint8, bool) {
	d := m.defs[reg]
	return d.val, d.ok
}

// Sync writes back to the hardware every cached register whose value
// differs from its power-on default, e.g. after a hardware reset.
func (m *Map) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.cache {
		var (
			reg = uint8(i)
			e   = m.cache[i]
		)
		if !e.valid || !e.dirty || m.Volatile(reg) || !m.writeable(reg) {
			continue
		}
		err := m.bus.WriteReg(reg, e.val)
		if err != nil {
			return &BusError{Op: "write", Reg: reg, Err: err}
		}
	}
	return nil
}

// Invalidate drops every cached value, e.g. after a hardware reset,
// so that the next reads are fetched from the hardware.
func (m *Map) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.cache {
		m.cache[i] = entry{}
	}
}
