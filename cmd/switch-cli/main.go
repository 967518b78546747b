// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/djs55/message-switch/client"
	"github.com/djs55/message-switch/protocol"
	"github.com/djs55/message-switch/trace"
)

const usage = `Usage: switch-cli [options] COMMAND [command options]

Commands:
  list [--prefix P]                    List queues
  tail [--follow]                      Print trace events
  mscgen                               Render the trace as an mscgen chart
  ack QUEUE ID                         Acknowledge a message
  destroy QUEUE                        Destroy a queue
  diagnostics                          Print the broker state snapshot
  call QUEUE [--body B | --file F] [--timeout S]
                                       Send a request and print the response
  serve QUEUE [--program P]            Answer requests on a queue

Options:
`

func main() {
	host := flag.String("host", "127.0.0.1", "Broker host")
	port := flag.Int("port", 8080, "Broker port")
	wsAddr := flag.String("ws-addr", "127.0.0.1:8083", "Broker trace WebSocket address")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.BoolVar(verbose, "verbose", false, "Verbose output")
	debug := flag.Bool("debug", false, "Debug output")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := client.Dial(fmt.Sprintf("%s:%d", *host, *port))
	defer c.Close()

	if err := run(ctx, c, *wsAddr, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client.Client, wsAddr, command string, args []string) error {
	switch command {
	case "list":
		fs := flag.NewFlagSet("list", flag.ExitOnError)
		prefix := fs.String("prefix", "", "Only list queues with this prefix")
		fs.Parse(args)

		if err := login(ctx, c); err != nil {
			return err
		}
		names, err := c.List(ctx, *prefix)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil

	case "tail":
		fs := flag.NewFlagSet("tail", flag.ExitOnError)
		follow := fs.Bool("follow", false, "Keep following new events")
		fs.Parse(args)

		items, err := c.Trace(ctx, -1, 0)
		if err != nil {
			return err
		}
		from := int64(-1)
		for _, item := range items {
			printTraceItem(item)
			from = item.Cursor
		}
		if !*follow {
			return nil
		}
		err = client.FollowTrace(ctx, "ws://"+wsAddr+"/ws/trace", from, func(item protocol.TraceItem) error {
			printTraceItem(item)
			return nil
		})
		if ctx.Err() != nil {
			return nil // interrupted by the user
		}
		return err

	case "mscgen":
		items, err := c.Trace(ctx, -1, 0)
		if err != nil {
			return err
		}
		fmt.Print(trace.Mscgen(items))
		return nil

	case "ack":
		if len(args) != 2 {
			return fmt.Errorf("ack needs QUEUE and ID")
		}
		index, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad message id %q: %w", args[1], err)
		}
		if err := login(ctx, c); err != nil {
			return err
		}
		return c.Ack(ctx, protocol.MessageID{Queue: args[0], Index: index})

	case "destroy":
		if len(args) != 1 {
			return fmt.Errorf("destroy needs QUEUE")
		}
		if err := login(ctx, c); err != nil {
			return err
		}
		return c.Destroy(ctx, args[0])

	case "diagnostics":
		d, err := c.Diagnostics(ctx)
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil

	case "call":
		queue, rest, err := popQueueArg(args)
		if err != nil {
			return fmt.Errorf("call needs QUEUE")
		}
		fs := flag.NewFlagSet("call", flag.ExitOnError)
		body := fs.String("body", "", "Request body")
		file := fs.String("file", "", "Read the request body from a file")
		timeout := fs.Float64("timeout", 30, "Seconds to wait for the response")
		fs.Parse(rest)

		payload := []byte(*body)
		if *file != "" {
			data, err := os.ReadFile(*file)
			if err != nil {
				return err
			}
			payload = data
		}

		if err := login(ctx, c); err != nil {
			return err
		}
		out, err := c.Call(ctx, queue, payload, *timeout)
		if err != nil {
			return err
		}
		os.Stdout.Write(out)
		fmt.Println()
		return nil

	case "serve":
		queue, rest, err := popQueueArg(args)
		if err != nil {
			return fmt.Errorf("serve needs QUEUE")
		}
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		program := fs.String("program", "", "Program answering each request (payload on stdin, response on stdout)")
		fs.Parse(rest)

		if err := login(ctx, c); err != nil {
			return err
		}
		err = c.Serve(ctx, queue, func(ctx context.Context, payload []byte) ([]byte, error) {
			if *program == "" {
				return payload, nil // echo
			}
			cmd := exec.CommandContext(ctx, *program)
			cmd.Stdin = bytes.NewReader(payload)
			var out bytes.Buffer
			cmd.Stdout = &out
			cmd.Stderr = os.Stderr
			if err := cmd.Run(); err != nil {
				return nil, fmt.Errorf("program %q failed: %w", *program, err)
			}
			return out.Bytes(), nil
		})
		if ctx.Err() != nil {
			return nil // interrupted by the user
		}
		return err

	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func login(ctx context.Context, c *client.Client) error {
	return c.Login(ctx, "cli."+uuid.New().String())
}

// popQueueArg takes the leading positional QUEUE argument so command flags
// may appear on either side of it.
func popQueueArg(args []string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("missing queue")
	}
	if !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:], nil
	}
	last := args[len(args)-1]
	if strings.HasPrefix(last, "-") {
		return "", nil, fmt.Errorf("missing queue")
	}
	return last, args[:len(args)-1], nil
}

func printTraceItem(item protocol.TraceItem) {
	ev := item.Event
	from, to := "-", "-"
	if ev.Input != nil {
		from = *ev.Input
	}
	if ev.Output != nil {
		to = *ev.Output
	}

	ts := time.Unix(0, int64(ev.Time*float64(time.Second))).Format(time.RFC3339Nano)
	switch ev.Message.Kind {
	case "ack":
		fmt.Printf("%s %s -> %s %s ack %s\n", ts, from, to, ev.Queue, ev.Message.ID)
	default:
		payload := ""
		if ev.Message.Message != nil {
			payload = strconv.Quote(string(ev.Message.Message.Payload))
		}
		suffix := ""
		if ev.ProcessingNs != nil {
			suffix = fmt.Sprintf(" (%.3fms)", float64(*ev.ProcessingNs)/1e6)
		}
		fmt.Printf("%s %s -> %s %s %s %s%s\n", ts, from, to, ev.Queue, ev.Message.ID, payload, suffix)
	}
}
