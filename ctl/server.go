// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/go-daq/tdaq/log"
)

// Request is a control request sent to a server.
type Request struct {
	Name    string `json:"name"`              // list, info, get or put
	Control string `json:"control,omitempty"` // control name
	Value   int    `json:"value,omitempty"`   // value to put
}

// Reply is the reply of a server to a request.
type Reply struct {
	Msg     string `json:"msg"` // "ok" or error message
	Value   int    `json:"value,omitempty"`
	Changed bool   `json:"changed,omitempty"`
	Infos   []Info `json:"infos,omitempty"`
}

// Server serves a control surface over TCP.
type Server struct {
	l   net.Listener
	msg log.MsgStream
	sfc *Surface

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	quit  bool
}

// NewServer creates a server listening on addr.
func NewServer(addr string, sfc *Surface, msg log.MsgStream) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ctl: could not listen on %q: %w", addr, err)
	}
	if msg == nil {
		msg = log.NewMsgStream("ctl", log.LvlInfo, os.Stdout)
	}
	return &Server{
		l:     l,
		msg:   msg,
		sfc:   sfc,
		conns: make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the address the server is listening on.
func (srv *Server) Addr() net.Addr { return srv.l.Addr() }

// Serve accepts connections until the server is closed.
func (srv *Server) Serve() error {
	for {
		conn, err := srv.l.Accept()
		if err != nil {
			if srv.closed() {
				return nil
			}
			return fmt.Errorf("ctl: could not accept connection: %w", err)
		}
		if !srv.track(conn) {
			_ = conn.Close()
			return nil
		}
		go srv.handle(conn)
	}
}

// track registers conn for Close.
// It reports false if the server was closed in the meantime.
func (srv *Server) track(conn net.Conn) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.quit {
		return false
	}
	srv.conns[conn] = struct{}{}
	return true
}

// Close stops the server and closes all its connections.
func (srv *Server) Close() error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	srv.quit = true
	for conn := range srv.conns {
		_ = conn.Close()
	}
	return srv.l.Close()
}

func (srv *Server) closed() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.quit
}

func (srv *Server) handle(conn net.Conn) {
	defer func() {
		srv.mu.Lock()
		delete(srv.conns, conn)
		srv.mu.Unlock()
		conn.Close()
	}()
	srv.msg.Debugf("serving %v...", conn.RemoteAddr())
	defer srv.msg.Debugf("serving %v... [done]", conn.RemoteAddr())

	var (
		dec = json.NewDecoder(conn)
		enc = json.NewEncoder(conn)
	)
	for {
		var req Request
		err := dec.Decode(&req)
		if err != nil {
			if errors.Is(err, io.EOF) || srv.closed() {
				return
			}
			srv.msg.Errorf("could not decode request: %+v", err)
			_ = enc.Encode(Reply{Msg: err.Error()})
			return
		}
		srv.msg.Debugf("received request: name=%q, control=%q", req.Name, req.Control)

		rep := srv.process(req)
		err = enc.Encode(rep)
		if err != nil {
			srv.msg.Errorf("could not send reply: %+v", err)
			return
		}
	}
}

func (srv *Server) process(req Request) Reply {
	var (
		rep = Reply{Msg: "ok"}
		err error
	)
	switch strings.ToLower(req.Name) {
	case "list":
		rep.Infos = srv.sfc.Infos()
	case "info":
		var info Info
		info, err = srv.sfc.Info(req.Control)
		rep.Infos = []Info{info}
	case "get":
		rep.Value, err = srv.sfc.Get(req.Control)
	case "put":
		rep.Changed, err = srv.sfc.Put(req.Control, req.Value)
		if err == nil && rep.Changed {
			srv.msg.Infof("control %q set to %d", req.Control, req.Value)
		}
	default:
		err = fmt.Errorf("ctl: unknown request %q", req.Name)
	}

	if err != nil {
		srv.msg.Errorf("could not process %q request: %+v", req.Name, err)
		return Reply{Msg: err.Error()}
	}
	return rep
}
