// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctl

import (
	"github.com/go-lpc/codec/cs42xx"
	"github.com/go-lpc/codec/regmap"
)

// Names of the codec controls.
const (
	DACVolume = "DAC Volume"
	PGAGain   = "PGA Gain"
	AuxOutMux = "AUX OUT MUX"
	Loopback  = "LOOPBACK"
)

// CodecControls returns the register backed controls of the provided codec.
func CodecControls(c *cs42xx.Codec) []Control {
	var (
		v  = c.Variant()
		rm = c.Regmap()
	)
	ctls := []Control{
		&regControl{
			info:   Info{Name: DACVolume, Kind: Integer, Min: 0, Max: 0xff},
			rm:     rm,
			regs:   []uint8{v.DACVolA, v.DACVolB},
			mask:   0xff,
			invert: true,
		},
		&regControl{
			info:   Info{Name: PGAGain, Kind: Integer, Min: 0, Max: 0x30},
			rm:     rm,
			regs:   []uint8{cs42xx.RegPGACtlA, cs42xx.RegPGACtlB},
			mask:   0x3f,
			offset: 0x28,
		},
		&regControl{
			info:  Info{Name: Loopback, Kind: Boolean, Min: 0, Max: 1},
			rm:    rm,
			regs:  []uint8{cs42xx.RegSigSel},
			shift: cs42xx.SigSelLoop,
			mask:  1,
		},
	}
	if v.AuxOut {
		ctls = append(ctls, &regControl{
			info:  Info{Name: AuxOutMux, Kind: Integer, Min: 0, Max: 3},
			rm:    rm,
			regs:  []uint8{cs42xx.RegSigSel},
			shift: cs42xx.SigSelAuxOut,
			mask:  3,
		})
	}
	return ctls
}

// regControl is a control stored in a bit field of one or more registers.
// Values are stored as ((v+offset)&mask)<<shift, or (mask-v)<<shift
// for inverted fields. Get reads the first register.
type regControl struct {
	info   Info
	rm     *regmap.Map
	regs   []uint8
	shift  uint8
	mask   uint8
	offset uint8
	invert bool
}

func (ctl *regControl) Info() Info { return ctl.info }

func (ctl *regControl) Get() (int, error) {
	raw, err := ctl.rm.Read(ctl.regs[0])
	if err != nil {
		return 0, err
	}
	return int(ctl.decode(raw)), nil
}

func (ctl *regControl) Put(v int) (bool, error) {
	var (
		raw     = ctl.encode(uint8(v))
		changed bool
	)
	for _, reg := range ctl.regs {
		c, err := ctl.rm.UpdateBitsCheck(reg, ctl.mask<<ctl.shift, raw<<ctl.shift)
		if err != nil {
			return changed, err
		}
		changed = changed || c
	}
	return changed, nil
}

func (ctl *regControl) encode(v uint8) uint8 {
	if ctl.invert {
		return ctl.mask - v
	}
	return (v + ctl.offset) & ctl.mask
}

func (ctl *regControl) decode(raw uint8) uint8 {
	v := (raw >> ctl.shift) & ctl.mask
	if ctl.invert {
		return ctl.mask - v
	}
	return (v - ctl.offset) & ctl.mask
}
