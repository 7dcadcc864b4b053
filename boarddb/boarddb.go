// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package boarddb retrieves board descriptions (codec variant, control bus,
// master clock and line names) from the board database.
package boarddb // import "github.com/go-lpc/codec/boarddb"

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-lpc/codec/board"
	"github.com/go-lpc/codec/cs42xx"
	_ "github.com/go-sql-driver/mysql"
)

const (
	host = "localhost"
)

var (
	usr = "username"
	pwd = "s3cr3t"

	drvName = "mysql"
)

var ErrNoBoard = errors.New("boarddb: no such board")

// Board describes a codec board.
type Board struct {
	Name    string
	Variant string // codec variant name
	Bus     int    // I2C bus number
	Addr    uint8  // codec address on the bus
	MCLK    uint32 // master clock frequency, in Hz

	// Lines holds the names of the board lines that differ from the
	// default ones.
	Lines map[board.Line]string
}

// Codec returns the codec variant of the board.
func (b Board) Codec() (cs42xx.Variant, error) {
	v, ok := cs42xx.Lookup(b.Variant)
	if !ok {
		return v, fmt.Errorf("boarddb: board %q has unknown codec variant %q", b.Name, b.Variant)
	}
	return v, nil
}

// Options returns the board options to acquire the board lines.
func (b Board) Options() []board.Option {
	if len(b.Lines) == 0 {
		return nil
	}
	return []board.Option{board.WithLineNames(b.Lines)}
}

// DB exposes convenience methods to retrieve board descriptions.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the board database dbname.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("boarddb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		return nil, fmt.Errorf("boarddb: could not ping %q db: %w", dbname, err)
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(db string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", usr, pwd, host, db)
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("boarddb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Boards returns the names of all the boards.
func (db *DB) Boards(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var names []string
	rows, err := db.db.QueryContext(ctx, "SELECT name FROM boards ORDER BY name")
	if err != nil {
		return names, fmt.Errorf("boarddb: could not query boards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		err = rows.Scan(&name)
		if err != nil {
			return names, fmt.Errorf("boarddb: could not scan board name: %w", err)
		}
		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return names, fmt.Errorf("boarddb: could not scan db for boards: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return names, fmt.Errorf("boarddb: context error while retrieving boards: %w", err)
	}

	return names, nil
}

// Board returns the description of the named board.
func (db *DB) Board(ctx context.Context, name string) (Board, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	brd := Board{Name: name}
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT variant, bus, addr, mclk FROM boards WHERE name=? LIMIT 1",
		name,
	)
	if err != nil {
		return brd, fmt.Errorf("boarddb: could not query board %q: %w", name, err)
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		err = rows.Scan(&brd.Variant, &brd.Bus, &brd.Addr, &brd.MCLK)
		if err != nil {
			return brd, fmt.Errorf("boarddb: could not scan board %q: %w", name, err)
		}
		found = true
	}

	if err := rows.Err(); err != nil {
		return brd, fmt.Errorf("boarddb: could not scan db for board %q: %w", name, err)
	}

	if !found {
		return brd, fmt.Errorf("boarddb: could not find board %q: %w", name, ErrNoBoard)
	}

	brd.Lines, err = db.lines(ctx, name)
	if err != nil {
		return brd, err
	}

	if err := ctx.Err(); err != nil {
		return brd, fmt.Errorf("boarddb: context error while retrieving board %q: %w", name, err)
	}

	return brd, nil
}

func (db *DB) lines(ctx context.Context, name string) (map[board.Line]string, error) {
	lines := make(map[board.Line]string)
	rows, err := db.db.QueryContext(
		ctx,
		"SELECT line, pin FROM board_lines WHERE board=?",
		name,
	)
	if err != nil {
		return lines, fmt.Errorf("boarddb: could not query lines of board %q: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var line, pin string
		err = rows.Scan(&line, &pin)
		if err != nil {
			return lines, fmt.Errorf("boarddb: could not scan lines of board %q: %w", name, err)
		}
		id, ok := board.LineByName(line)
		if !ok {
			return lines, fmt.Errorf("boarddb: board %q has unknown line %q", name, line)
		}
		lines[id] = pin
	}

	if err := rows.Err(); err != nil {
		return lines, fmt.Errorf("boarddb: could not scan db for lines of board %q: %w", name, err)
	}

	return lines, nil
}
