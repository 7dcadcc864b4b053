// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regmap

import (
	"fmt"
	"io"

	"github.com/go-daq/smbus"
	"periph.io/x/conn/v3/i2c"
)

// SMBus is a register transport over a Linux SMBus adapter.
type SMBus struct {
	conn *smbus.Conn
	addr uint8
}

// OpenSMBus opens the SMBus adapter /dev/i2c-<bus> and targets the
// device at addr.
func OpenSMBus(bus int, addr uint8) (*SMBus, error) {
	conn, err := smbus.Open(bus, addr)
	if err != nil {
		return nil, fmt.Errorf("regmap: could not open SMBus %d (addr=0x%x): %w", bus, addr, err)
	}
	return &SMBus{conn: conn, addr: addr}, nil
}

func (bus *SMBus) ReadReg(reg uint8) (uint8, error) {
	return bus.conn.ReadReg(bus.addr, reg)
}

func (bus *SMBus) WriteReg(reg, v uint8) error {
	return bus.conn.WriteReg(bus.addr, reg, v)
}

func (bus *SMBus) Close() error {
	return bus.conn.Close()
}

// I2C is a register transport over a periph I²C bus.
type I2C struct {
	dev i2c.Dev
	buf [2]byte
}

// NewI2C returns a register transport for the device at addr on bus.
func NewI2C(bus i2c.Bus, addr uint16) *I2C {
	return &I2C{dev: i2c.Dev{Bus: bus, Addr: addr}}
}

func (bus *I2C) ReadReg(reg uint8) (uint8, error) {
	bus.buf[0] = reg
	err := bus.dev.Tx(bus.buf[:1], bus.buf[1:2])
	if err != nil {
		return 0, err
	}
	return bus.buf[1], nil
}

func (bus *I2C) WriteReg(reg, v uint8) error {
	bus.buf[0] = reg
	bus.buf[1] = v
	return bus.dev.Tx(bus.buf[:2], nil)
}

type rwer interface {
	io.ReaderAt
	io.WriterAt
}

// RW is a register transport over a byte window, where register reg
// lives at offset reg. It is typically backed by a memory-mapped file
// to simulate a device.
type RW struct {
	rw  rwer
	buf [1]byte
}

// NewRW returns a register transport reading and writing registers from rw.
func NewRW(rw rwer) *RW {
	return &RW{rw: rw}
}

func (bus *RW) ReadReg(reg uint8) (uint8, error) {
	_, err := bus.rw.ReadAt(bus.buf[:], int64(reg))
	if err != nil {
		return 0, err
	}
	return bus.buf[0], nil
}

func (bus *RW) WriteReg(reg, v uint8) error {
	bus.buf[0] = v
	_, err := bus.rw.WriteAt(bus.buf[:], int64(reg))
	return err
}

var (
	_ Bus = (*SMBus)(nil)
	_ Bus = (*I2C)(nil)
	_ Bus = (*RW)(nil)
)
