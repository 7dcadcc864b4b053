// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cs42xx

import (
	"github.com/go-lpc/codec/regmap"
)

// Register addresses, common to the CS4245 and CS4265.
const (
	RegChipID        = 0x01
	RegPwrCtl        = 0x02
	RegDACCtl        = 0x03
	RegADCCtl        = 0x04
	RegMCLKFreq      = 0x05
	RegSigSel        = 0x06
	RegPGACtlB       = 0x07
	RegPGACtlA       = 0x08
	RegADCCtl2       = 0x09
	RegDACCtl2       = 0x0c
	RegIntStatus     = 0x0d
	RegIntMask       = 0x0e
	RegStatusModeMSB = 0x0f
	RegStatusModeLSB = 0x10

	// CS4265 only.
	RegSPDIFCtl1 = 0x11
	RegSPDIFCtl2 = 0x12
	RegCDataBuf  = 0x13
)

// Register fields.
const (
	chipIDMask = 0xf0
	revIDMask  = 0x0f

	pwrCtlPDN    = 0x01
	pwrCtlPDNMic = 0x08

	dacCtlMute = 1 << 2
	dacCtlDIF  = 3 << 4

	adcCtlMaster = 1 << 0
	adcCtlMute   = 1 << 2
	adcCtlDIF    = 1 << 4
	adcCtlFM     = 3 << 6

	mclkFreqMask = 7 << 4

	spdifCtl2Mute = 1 << 4
	spdifCtl2DIF  = 3 << 6
)

// Signal selection fields, as shifts into RegSigSel.
const (
	SigSelLoop   = 1 // digital loopback, 1 bit
	SigSelAuxOut = 5 // AUX OUT source, 2 bits
)

// Variant describes a member of the codec family.
type Variant struct {
	Name        string
	ChipID      uint8 // expected value of the chip-id register, masked with 0xf0
	MaxRegister uint8
	Defaults    []regmap.Default

	// DAC volume registers for channels A and B.
	DACVolA uint8
	DACVolB uint8

	// SPDIF is true for variants with an S/PDIF transmitter.
	SPDIF bool

	// AuxOut is true for variants with an AUX OUT source selector.
	AuxOut bool

	// Profile is the list of register writes issued once the chip id matched.
	Profile []regmap.Default
}

var (
	CS4245 = Variant{
		Name:        "cs4245",
		ChipID:      0xc0,
		MaxRegister: 0x10,
		Defaults: []regmap.Default{
			{Reg: RegPwrCtl, Val: 0x0f},
			{Reg: RegDACCtl, Val: 0x08},
			{Reg: RegADCCtl, Val: 0x00},
			{Reg: RegMCLKFreq, Val: 0x00},
			{Reg: RegSigSel, Val: 0x40},
			{Reg: RegPGACtlB, Val: 0x00},
			{Reg: RegPGACtlA, Val: 0x00},
			{Reg: RegADCCtl2, Val: 0x19},
			{Reg: 0x0a, Val: 0x00},
			{Reg: 0x0b, Val: 0x00},
			{Reg: RegDACCtl2, Val: 0xc0},
			{Reg: RegIntStatus, Val: 0x00},
			{Reg: RegIntMask, Val: 0x00},
			{Reg: RegStatusModeMSB, Val: 0x00},
			{Reg: RegStatusModeLSB, Val: 0x00},
		},
		DACVolA: 0x0b,
		DACVolB: 0x0a,
		AuxOut:  true,
		Profile: ProfileDuo,
	}

	CS4265 = Variant{
		Name:        "cs4265",
		ChipID:      0xd0,
		MaxRegister: 0x2a,
		Defaults: []regmap.Default{
			{Reg: RegPwrCtl, Val: 0x0f},
			{Reg: RegDACCtl, Val: 0x08},
			{Reg: RegADCCtl, Val: 0x00},
			{Reg: RegMCLKFreq, Val: 0x00},
			{Reg: RegSigSel, Val: 0x40},
			{Reg: RegPGACtlB, Val: 0x00},
			{Reg: RegPGACtlA, Val: 0x00},
			{Reg: RegADCCtl2, Val: 0x19},
			{Reg: 0x0a, Val: 0x00},
			{Reg: 0x0b, Val: 0x00},
			{Reg: RegDACCtl2, Val: 0xc0},
			{Reg: RegSPDIFCtl1, Val: 0x00},
			{Reg: RegSPDIFCtl2, Val: 0x00},
			{Reg: RegIntMask, Val: 0x00},
			{Reg: RegStatusModeMSB, Val: 0x00},
			{Reg: RegStatusModeLSB, Val: 0x00},
		},
		DACVolA: 0x0a,
		DACVolB: 0x0b,
		SPDIF:   true,
		Profile: ProfileDefault,
	}
)

// Register profiles applied once the codec was identified.
var (
	// ProfileDefault powers everything up.
	ProfileDefault = []regmap.Default{
		{Reg: RegPwrCtl, Val: 0x0f},
	}

	// ProfileDuo powers down the microphone pre-amp, mutes DAC and ADC,
	// enables digital loopback and soft-ramp/zero-cross on input pair 4.
	ProfileDuo = []regmap.Default{
		{Reg: RegPwrCtl, Val: pwrCtlPDNMic},
		{Reg: RegDACCtl, Val: 0x08 | dacCtlMute},
		{Reg: RegADCCtl, Val: adcCtlMute},
		{Reg: RegSigSel, Val: 0x02},
		{Reg: RegADCCtl2, Val: 0x10 | 0x08 | 0x04},
		{Reg: RegDACCtl2, Val: 0x08 | 0x04},
	}

	// ProfileDwarf turns on everything except the microphone pre-amp,
	// with line-in input and soft-ramp/zero-cross.
	ProfileDwarf = []regmap.Default{
		{Reg: RegPwrCtl, Val: pwrCtlPDNMic},
		{Reg: RegDACCtl, Val: 0x08},
		{Reg: RegADCCtl, Val: 0x00},
		{Reg: RegSigSel, Val: 0x40},
		{Reg: RegADCCtl2, Val: 0x10 | 0x08 | 0x01},
		{Reg: RegDACCtl2, Val: 0x80 | 0x40},
	}
)

// Lookup returns the variant with the provided name.
func Lookup(name string) (Variant, bool) {
	switch name {
	case CS4245.Name:
		return CS4245, true
	case CS4265.Name:
		return CS4265, true
	}
	return Variant{}, false
}

// LookupProfile returns the register profile with the provided name,
// one of "default", "duo" or "dwarf".
func LookupProfile(name string) ([]regmap.Default, bool) {
	switch name {
	case "default":
		return ProfileDefault, true
	case "duo":
		return ProfileDuo, true
	case "dwarf":
		return ProfileDwarf, true
	}
	return nil, false
}

func (v Variant) config() regmap.Config {
	return regmap.Config{
		MaxRegister: v.MaxRegister,
		Defaults:    v.Defaults,
		Readable:    func(reg uint8) bool { return reg >= RegChipID },
		Writeable:   func(reg uint8) bool { return reg != RegChipID },
		Volatile:    func(reg uint8) bool { return reg == RegIntStatus },
	}
}
