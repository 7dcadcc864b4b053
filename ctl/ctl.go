// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ctl exposes the board and codec settings as named controls,
// locally and over a JSON/TCP connection.
package ctl // import "github.com/go-lpc/codec/ctl"

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknown    = errors.New("ctl: unknown control")
	ErrOutOfRange = errors.New("ctl: value out of range")
	ErrDuplicate  = errors.New("ctl: duplicate control")
)

// Kind is the kind of value held by a control.
type Kind string

const (
	Integer Kind = "integer"
	Boolean Kind = "boolean"
)

// Info describes a control.
type Info struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	Min  int    `json:"min"`
	Max  int    `json:"max"`
}

// Control is a named gettable/settable value.
type Control interface {
	Info() Info
	Get() (int, error)
	// Put sets the control value and reports whether it changed.
	Put(v int) (bool, error)
}

// Surface is a set of controls.
type Surface struct {
	mu   sync.RWMutex
	ctls map[string]Control
}

// NewSurface creates a new surface holding the provided controls.
func NewSurface(ctls ...Control) (*Surface, error) {
	sfc := &Surface{ctls: make(map[string]Control)}
	err := sfc.Add(ctls...)
	if err != nil {
		return nil, err
	}
	return sfc, nil
}

// Add adds controls to the surface.
func (sfc *Surface) Add(ctls ...Control) error {
	sfc.mu.Lock()
	defer sfc.mu.Unlock()

	for _, ctl := range ctls {
		name := ctl.Info().Name
		if _, dup := sfc.ctls[name]; dup {
			return fmt.Errorf("ctl: could not add %q: %w", name, ErrDuplicate)
		}
		sfc.ctls[name] = ctl
	}
	return nil
}

// Infos returns the description of all controls, sorted by name.
func (sfc *Surface) Infos() []Info {
	sfc.mu.RLock()
	defer sfc.mu.RUnlock()

	infos := make([]Info, 0, len(sfc.ctls))
	for _, ctl := range sfc.ctls {
		infos = append(infos, ctl.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

func (sfc *Surface) lookup(name string) (Control, error) {
	sfc.mu.RLock()
	defer sfc.mu.RUnlock()

	ctl, ok := sfc.ctls[name]
	if !ok {
		return nil, fmt.Errorf("ctl: no control %q: %w", name, ErrUnknown)
	}
	return ctl, nil
}

// Info returns the description of the named control.
func (sfc *Surface) Info(name string) (Info, error) {
	ctl, err := sfc.lookup(name)
	if err != nil {
		return Info{}, err
	}
	return ctl.Info(), nil
}

// Get returns the value of the named control.
func (sfc *Surface) Get(name string) (int, error) {
	ctl, err := sfc.lookup(name)
	if err != nil {
		return 0, err
	}
	v, err := ctl.Get()
	if err != nil {
		return 0, fmt.Errorf("ctl: could not get %q: %w", name, err)
	}
	return v, nil
}

// Put sets the value of the named control and reports whether it changed.
func (sfc *Surface) Put(name string, v int) (bool, error) {
	ctl, err := sfc.lookup(name)
	if err != nil {
		return false, err
	}
	info := ctl.Info()
	if v < info.Min || v > info.Max {
		return false, fmt.Errorf(
			"ctl: invalid value %d for %q (min=%d, max=%d): %w",
			v, name, info.Min, info.Max, ErrOutOfRange,
		)
	}

	changed, err := ctl.Put(v)
	if err != nil {
		return changed, fmt.Errorf("ctl: could not put %q=%d: %w", name, v, err)
	}
	return changed, nil
}

// funcControl is a control backed by a getter/setter pair.
// Put only calls the setter when the value differs from the current one.
type funcControl struct {
	info Info
	get  func() int
	set  func(v int) error
}

func (ctl *funcControl) Info() Info        { return ctl.info }
func (ctl *funcControl) Get() (int, error) { return ctl.get(), nil }

func (ctl *funcControl) Put(v int) (bool, error) {
	if ctl.get() == v {
		return false, nil
	}
	err := ctl.set(v)
	if err != nil {
		return false, err
	}
	return true, nil
}

func newInt(name string, min, max int, get func() int, set func(int) error) *funcControl {
	return &funcControl{
		info: Info{Name: name, Kind: Integer, Min: min, Max: max},
		get:  get,
		set:  set,
	}
}

func newBool(name string, get func() bool, set func(bool) error) *funcControl {
	return &funcControl{
		info: Info{Name: name, Kind: Boolean, Min: 0, Max: 1},
		get:  func() int { return b2i(get()) },
		set:  func(v int) error { return set(v != 0) },
	}
}

func b2i(v bool) int {
	if v {
		return 1
	}
	return 0
}
