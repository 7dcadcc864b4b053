// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
)

// Client is a connection to a control server.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

// Dial connects to the control server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ctl: could not dial %q: %w", addr, err)
	}
	return &Client{
		conn: conn,
		enc:  json.NewEncoder(conn),
		dec:  json.NewDecoder(conn),
	}, nil
}

// Close closes the connection to the server.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(req Request) (Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.enc.Encode(req)
	if err != nil {
		return Reply{}, fmt.Errorf("ctl: could not send %q request: %w", req.Name, err)
	}

	var rep Reply
	err = c.dec.Decode(&rep)
	if err != nil {
		return rep, fmt.Errorf("ctl: could not receive %q reply: %w", req.Name, err)
	}
	if rep.Msg != "ok" {
		return rep, fmt.Errorf("ctl: %q request failed: %w", req.Name, errors.New(rep.Msg))
	}
	return rep, nil
}

// List returns the description of all the server controls.
func (c *Client) List() ([]Info, error) {
	rep, err := c.send(Request{Name: "list"})
	if err != nil {
		return nil, err
	}
	return rep.Infos, nil
}

// Info returns the description of the named control.
func (c *Client) Info(name string) (Info, error) {
	rep, err := c.send(Request{Name: "info", Control: name})
	if err != nil {
		return Info{}, err
	}
	if len(rep.Infos) != 1 {
		return Info{}, fmt.Errorf("ctl: invalid info reply for %q", name)
	}
	return rep.Infos[0], nil
}

// Get returns the value of the named control.
func (c *Client) Get(name string) (int, error) {
	rep, err := c.send(Request{Name: "get", Control: name})
	if err != nil {
		return 0, err
	}
	return rep.Value, nil
}

// Put sets the value of the named control and reports whether it changed.
func (c *Client) Put(name string, v int) (bool, error) {
	rep, err := c.send(Request{Name: "put", Control: name, Value: v})
	if err != nil {
		return false, err
	}
	return rep.Changed, nil
}
