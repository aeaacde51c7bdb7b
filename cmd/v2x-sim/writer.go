package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"v2x-sim/internal/sink"
)

// defaultGreptimePort is the GreptimeDB gRPC port.
const defaultGreptimePort = 4001

type writerOptions struct {
	PrintOnly bool
	TUI       bool
	LogFile   string
	BoltFile  string
	ShowCAM   bool
	Settings  []sink.Setting
}

// newWriters sets up the event journal writers based on flags and env vars.
// It returns the writers and a cleanup function to close any resources.
func newWriters(opts writerOptions) (*sink.MultiWriter, func(), error) {
	base, err := baseWriter(opts)
	if err != nil {
		return nil, nil, err
	}
	mw := sink.NewMultiWriter(base)
	cleanup := func() {
		if err := mw.Close(); err != nil {
			slog.Warn("closing writers failed", "err", err)
		}
	}

	if opts.LogFile != "" {
		fw, err := sink.NewFileWriter(opts.LogFile, true)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		mw.Add(fw)
	}
	if opts.BoltFile != "" {
		bw, err := sink.NewBoltWriter(opts.BoltFile, false)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		mw.Add(bw)
	}
	return mw, cleanup, nil
}

// baseWriter chooses the primary writer based on flags and GREPTIMEDB_ENDPOINT.
func baseWriter(opts writerOptions) (sink.Writer, error) {
	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if opts.PrintOnly || endpoint == "" {
		if opts.TUI {
			return sink.NewTUIWriter(opts.Settings, opts.ShowCAM), nil
		}
		return sink.NewStdoutWriter(opts.Settings, opts.ShowCAM), nil
	}
	host, port, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	database := os.Getenv("GREPTIMEDB_DATABASE")
	if database == "" {
		database = "public"
	}
	w, err := sink.NewGreptimeDBWriter(host, port, database)
	if err != nil {
		return nil, fmt.Errorf("init GreptimeDB writer: %w", err)
	}
	return w, nil
}

// parseEndpoint splits host[:port].
func parseEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid GREPTIMEDB_ENDPOINT port %q: %w", portStr, err)
	}
	return host, port, nil
}
