// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-lpc/codec/board"
	"github.com/go-lpc/codec/boarddb"
	"github.com/go-lpc/codec/cs42xx"
)

// config is the configuration of a codec server, read from the environment
// and, when CODEC_DB is set, from the board database.
type config struct {
	board string // board name in the board database
	db    string // board database name

	chip    string // codec variant
	profile string // register profile applied after probing
	bus     int    // I2C bus number
	addr    uint8  // codec address
	mclk    uint32 // master clock frequency
	rate    uint32 // sample rate programmed on /start
	width   int    // sample width programmed on /start
	i2c     string // "smbus" or "periph"
	sim     string // register file of the simulated codec
	ctl     string // control server address

	lines map[board.Line]string
}

func newConfig(name string) config {
	return config{
		board:   name,
		db:      os.Getenv("CODEC_DB"),
		chip:    getenv("CODEC_CHIP", cs42xx.CS4265.Name),
		profile: os.Getenv("CODEC_PROFILE"),
		bus:     atoi(getenv("CODEC_BUS", "1"), 1),
		addr:    uint8(atoi(getenv("CODEC_ADDR", "0x4f"), 0x4f)),
		mclk:    uint32(atoi(getenv("CODEC_MCLK", "24576000"), 24576000)),
		rate:    uint32(atoi(getenv("CODEC_RATE", "48000"), 48000)),
		width:   atoi(getenv("CODEC_WIDTH", "24"), 24),
		i2c:     getenv("CODEC_I2C", "smbus"),
		sim:     os.Getenv("CODEC_SIM"),
		ctl:     getenv("CODEC_CTL_ADDR", ":8867"),
	}
}

// load completes the configuration with the board database description.
func (cfg *config) load(ctx context.Context) error {
	if cfg.db == "" {
		return nil
	}

	db, err := boarddb.Open(cfg.db)
	if err != nil {
		return fmt.Errorf("could not open board db: %w", err)
	}
	defer db.Close()

	brd, err := db.Board(ctx, cfg.board)
	if err != nil {
		return fmt.Errorf("could not load board %q: %w", cfg.board, err)
	}

	v, err := brd.Codec()
	if err != nil {
		return err
	}

	cfg.chip = v.Name
	cfg.bus = brd.Bus
	cfg.addr = brd.Addr
	if brd.MCLK != 0 {
		cfg.mclk = brd.MCLK
	}
	cfg.lines = brd.Lines
	return nil
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func atoi(s string, def int) int {
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return def
	}
	return int(v)
}
