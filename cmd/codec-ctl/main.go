// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command codec-ctl inspects and modifies the controls of a running
// codec-srv.
//
// Usage:
//
//	$> codec-ctl [-addr host:port] [command [args...]]
//
// Without a command, codec-ctl starts an interactive shell.
//
// Commands:
//
//	list                list all controls
//	info <name>         describe a control
//	get  <name>         print the value of a control
//	set  <name> <value> modify the value of a control
//	quit                leave the shell
package main // import "github.com/go-lpc/codec/cmd/codec-ctl"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/go-lpc/codec"
	"github.com/go-lpc/codec/ctl"
	"github.com/peterh/liner"
)

func main() {
	var (
		addr = flag.String("addr", "localhost:8867", "[ip]:port of the codec control server")
		vers = flag.Bool("version", false, "print version and exit")
	)

	flag.Parse()

	log.SetPrefix("codec-ctl: ")
	log.SetFlags(0)

	if *vers {
		v, sum := codec.Version()
		fmt.Printf("codec-ctl %s %s\n", v, sum)
		return
	}

	cli, err := ctl.Dial(*addr)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	defer cli.Close()

	sh := newShell(cli, os.Stdout)
	if flag.NArg() > 0 {
		_, err = sh.exec(flag.Args())
		if err != nil {
			log.Fatalf("%+v", err)
		}
		return
	}

	err = sh.loop(history())
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

type client interface {
	List() ([]ctl.Info, error)
	Info(name string) (ctl.Info, error)
	Get(name string) (int, error)
	Put(name string, v int) (bool, error)
}

type shell struct {
	cli client
	w   io.Writer
}

func newShell(cli client, w io.Writer) *shell {
	return &shell{cli: cli, w: w}
}

func history() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "codec-ctl.history")
}

func (sh *shell) loop(hist string) error {
	term := liner.NewLiner()
	defer term.Close()

	term.SetCtrlCAborts(true)
	term.SetCompleter(sh.complete)

	if hist != "" {
		f, err := os.Open(hist)
		if err == nil {
			_, _ = term.ReadHistory(f)
			f.Close()
		}
		defer func() {
			f, err := os.Create(hist)
			if err != nil {
				log.Printf("could not save history: %+v", err)
				return
			}
			defer f.Close()
			_, _ = term.WriteHistory(f)
		}()
	}

	for {
		line, err := term.Prompt("codec> ")
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, liner.ErrPromptAborted):
			fmt.Fprintln(sh.w)
			return nil
		default:
			return fmt.Errorf("could not read command: %w", err)
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		term.AppendHistory(line)

		quit, err := sh.exec(args)
		if err != nil {
			fmt.Fprintf(sh.w, "error: %v\n", err)
			continue
		}
		if quit {
			return nil
		}
	}
}

// exec runs a single command and reports whether the shell should quit.
// Control names may contain spaces: the value of a set command is its
// last argument.
func (sh *shell) exec(args []string) (bool, error) {
	cmd, args := args[0], args[1:]
	name := strings.Join(args, " ")

	switch cmd {
	case "quit", "exit":
		return true, nil

	case "help":
		fmt.Fprint(sh.w, help)

	case "list", "ls":
		infos, err := sh.cli.List()
		if err != nil {
			return false, err
		}
		tw := tabwriter.NewWriter(sh.w, 0, 8, 1, ' ', 0)
		for _, info := range infos {
			fmt.Fprintf(tw, "%s\t%s\t[%d, %d]\n", info.Name, info.Kind, info.Min, info.Max)
		}
		return false, tw.Flush()

	case "info":
		if name == "" {
			return false, fmt.Errorf("missing control name")
		}
		info, err := sh.cli.Info(name)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(sh.w, "name: %q\nkind: %s\nmin:  %d\nmax:  %d\n",
			info.Name, info.Kind, info.Min, info.Max,
		)

	case "get":
		if name == "" {
			return false, fmt.Errorf("missing control name")
		}
		v, err := sh.cli.Get(name)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(sh.w, "%s = %d\n", name, v)

	case "set", "put":
		if len(args) < 2 {
			return false, fmt.Errorf("usage: set <name> <value>")
		}
		name = strings.Join(args[:len(args)-1], " ")
		v, err := parseValue(args[len(args)-1])
		if err != nil {
			return false, err
		}
		changed, err := sh.cli.Put(name, v)
		if err != nil {
			return false, err
		}
		if !changed {
			fmt.Fprintf(sh.w, "%s = %d (unchanged)\n", name, v)
			return false, nil
		}
		fmt.Fprintf(sh.w, "%s = %d\n", name, v)

	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}

	return false, nil
}

func (sh *shell) complete(line string) []string {
	var (
		cmds = []string{"list", "info ", "get ", "set ", "help", "quit"}
		out  []string
	)
	for _, cmd := range cmds {
		if strings.HasPrefix(cmd, line) {
			out = append(out, cmd)
		}
	}
	if len(out) > 0 {
		return out
	}

	i := strings.Index(line, " ")
	if i < 0 {
		return nil
	}
	cmd, prefix := line[:i+1], line[i+1:]
	infos, err := sh.cli.List()
	if err != nil {
		return nil
	}
	for _, info := range infos {
		if strings.HasPrefix(info.Name, prefix) {
			out = append(out, cmd+info.Name)
		}
	}
	sort.Strings(out)
	return out
}

func parseValue(s string) (int, error) {
	switch strings.ToLower(s) {
	case "on", "true":
		return 1, nil
	case "off", "false":
		return 0, nil
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid control value %q: %w", s, err)
	}
	return int(v), nil
}

const help = `commands:
  list                list all controls
  info <name>         describe a control
  get  <name>         print the value of a control
  set  <name> <value> modify the value of a control
  quit                leave the shell
`
