// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctl

import (
	"encoding/json"
	"net"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/go-lpc/codec/cs42xx"
)

func TestServerFail(t *testing.T) {
	_, err := NewServer(":invalid", nil, quiet("ctl"))
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestServer(t *testing.T) {
	port, err := getTCPPort()
	if err != nil {
		t.Fatalf("could not get TCP port: %+v", err)
	}
	addr := "localhost:" + port

	brd, _ := newBoard(t)
	c, _ := newCodec(t, cs42xx.CS4265)
	sfc, err := NewSurface(append(BoardControls(brd), CodecControls(c)...)...)
	if err != nil {
		t.Fatalf("could not create surface: %+v", err)
	}

	srv, err := NewServer(addr, sfc, quiet("ctl"))
	if err != nil {
		t.Fatalf("could not create server: %+v", err)
	}

	errch := make(chan error)
	go func() {
		errch <- srv.Serve()
	}()

	cli, err := Dial(addr)
	if err != nil {
		t.Fatalf("could not dial server: %+v", err)
	}
	defer cli.Close()

	infos, err := cli.List()
	if err != nil {
		t.Fatalf("could not list controls: %+v", err)
	}
	if got, want := infos, sfc.Infos(); !reflect.DeepEqual(got, want) {
		t.Fatalf("invalid controls:\ngot= %+v\nwant=%+v", got, want)
	}

	info, err := cli.Info(HeadphoneVolume)
	if err != nil {
		t.Fatalf("could not get info: %+v", err)
	}
	if got, want := info, (Info{HeadphoneVolume, Integer, 0, 15}); got != want {
		t.Fatalf("invalid info:\ngot= %+v\nwant=%+v", got, want)
	}

	for _, tc := range []struct {
		name    string
		v       int
		changed bool
	}{
		{HeadphoneVolume, 7, true},
		{HeadphoneVolume, 7, false},
		{LeftGainStage, 1, true},
		{DACVolume, 0x80, true},
		{Loopback, 1, true},
	} {
		changed, err := cli.Put(tc.name, tc.v)
		if err != nil {
			t.Fatalf("could not put %q=%d: %+v", tc.name, tc.v, err)
		}
		if changed != tc.changed {
			t.Fatalf("%q=%d: invalid changed: got=%v, want=%v", tc.name, tc.v, changed, tc.changed)
		}
		v, err := cli.Get(tc.name)
		if err != nil {
			t.Fatalf("could not get %q: %+v", tc.name, err)
		}
		if v != tc.v {
			t.Fatalf("invalid %q: got=%d, want=%d", tc.name, v, tc.v)
		}
	}

	for _, tc := range []struct {
		name string
		do   func() error
		want string
	}{
		{
			name: "unknown-control",
			do:   func() error { _, err := cli.Get("nope"); return err },
			want: ErrUnknown.Error(),
		},
		{
			name: "out-of-range",
			do:   func() error { _, err := cli.Put(HeadphoneVolume, 42); return err },
			want: ErrOutOfRange.Error(),
		},
		{
			name: "unknown-request",
			do:   func() error { _, err := cli.send(Request{Name: "reboot"}); return err },
			want: `unknown request "reboot"`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.do()
			if err == nil {
				t.Fatalf("expected an error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("invalid error: got=%q, want=%q", err, tc.want)
			}
		})
	}

	if got, want := brd.Volume(), 7; got != want {
		t.Fatalf("invalid board volume: got=%d, want=%d", got, want)
	}

	// invalid payload.
	raw, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("could not dial server: %+v", err)
	}
	defer raw.Close()
	_, err = raw.Write([]byte("{not-json\n"))
	if err != nil {
		t.Fatalf("could not send invalid request: %+v", err)
	}
	var rep Reply
	err = json.NewDecoder(raw).Decode(&rep)
	if err != nil {
		t.Fatalf("could not decode reply: %+v", err)
	}
	if rep.Msg == "ok" {
		t.Fatalf("invalid reply: %+v", rep)
	}

	err = srv.Close()
	if err != nil {
		t.Fatalf("could not close server: %+v", err)
	}
	err = <-errch
	if err != nil {
		t.Fatalf("could not serve: %+v", err)
	}
}

func TestServerTrackAfterClose(t *testing.T) {
	srv, err := NewServer("localhost:0", nil, quiet("ctl"))
	if err != nil {
		t.Fatalf("could not create server: %+v", err)
	}

	live, peer := net.Pipe()
	defer peer.Close()
	if !srv.track(live) {
		t.Fatalf("could not track connection of a running server")
	}

	err = srv.Close()
	if err != nil {
		t.Fatalf("could not close server: %+v", err)
	}
	if _, err := peer.Read(make([]byte, 1)); err == nil {
		t.Fatalf("tracked connection still open after close")
	}

	late, _ := net.Pipe()
	defer late.Close()
	if srv.track(late) {
		t.Fatalf("connection tracked after close")
	}
	srv.mu.Lock()
	n := len(srv.conns)
	srv.mu.Unlock()
	if n != 1 {
		t.Fatalf("invalid number of tracked connections: got=%d, want=1", n)
	}
}

func getTCPPort() (string, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return "", err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return "", err
	}
	defer l.Close()
	return strconv.Itoa(l.Addr().(*net.TCPAddr).Port), nil
}
