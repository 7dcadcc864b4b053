// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctl

import (
	"github.com/go-lpc/codec/board"
)

// Names of the board controls.
const (
	HeadphoneVolume = "Headphone Playback Volume"
	LeftGainStage   = "Left Gain Stage"
	RightGainStage  = "Right Gain Stage"
	LeftBypass      = "Left True-Bypass"
	RightBypass     = "Right True-Bypass"
	HeadphoneCVMode = "Headphone/CV Mode"
	CVExpPedalMode  = "CV/Exp.Pedal Mode"
	ExpPedalMode    = "Exp.Pedal Mode"
)

// BoardControls returns the controls of the provided board.
// Without initialized pins, all controls are exposed and only track the
// logical state. Otherwise, controls are exposed for the hardware found
// at attach time.
func BoardControls(brd *board.Board) []Control {
	var (
		caps = brd.Caps()
		sim  = !caps.Pins
	)

	ctls := []Control{
		newInt(HeadphoneVolume, 0, board.MaxVolume,
			brd.Volume,
			func(v int) error { _, err := brd.SetVolume(v); return err },
		),
		gainStage(brd, LeftGainStage, board.Left),
		gainStage(brd, RightGainStage, board.Right),
	}

	if sim || caps.Bypass {
		ctls = append(ctls,
			bypass(brd, LeftBypass, board.Left),
			bypass(brd, RightBypass, board.Right),
		)
	}

	if sim || caps.HeadphoneCV {
		ctls = append(ctls, newBool(HeadphoneCVMode,
			brd.HeadphoneCV,
			brd.SetHeadphoneCV,
		))
	}

	if sim || caps.ExpPedal {
		ctls = append(ctls,
			newBool(CVExpPedalMode,
				func() bool { return brd.Mode() == board.ExpPedalMode },
				func(v bool) error {
					if v {
						return brd.SetMode(board.ExpPedalMode)
					}
					return brd.SetMode(board.CVMode)
				},
			),
			newBool(ExpPedalMode,
				func() bool { return brd.Side() == board.SignalOnRing },
				func(v bool) error {
					if v {
						return brd.SetSide(board.SignalOnRing)
					}
					return brd.SetSide(board.SignalOnTip)
				},
			),
		)
	}

	return ctls
}

func gainStage(brd *board.Board, name string, ch board.Channel) Control {
	return newInt(name, 0, board.MaxGainStage,
		func() int { return brd.GainStage(ch) },
		func(v int) error { return brd.SetGainStage(ch, v) },
	)
}

func bypass(brd *board.Board, name string, ch board.Channel) Control {
	return newBool(name,
		func() bool { return brd.Bypass(ch) },
		func(v bool) error { return brd.SetBypass(ch, v) },
	)
}
