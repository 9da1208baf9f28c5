package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/hausd/itd/internal/config"
	"github.com/hausd/itd/internal/wire"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.ParseClient(os.Args[1:])
	if err != nil {
		if flagErr, ok := err.(*flags.Error); ok && flagErr.Type == flags.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: cfg.Socket, Net: "unix"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "it: connect:", err)
		return 1
	}
	defer conn.Close()

	if err := sendAll(conn, os.Stdin, buildQueries(cfg)); err != nil {
		fmt.Fprintln(os.Stderr, "it:", err)
		return 1
	}

	if _, err := io.Copy(os.Stdout, conn); err != nil {
		fmt.Fprintln(os.Stderr, "it: read reply:", err)
		return 1
	}
	return 0
}

// sendAll writes the ingest phase (every stdin line, then the literal EOF
// line), then every query, then half-closes the write side so the daemon
// sees no more input is coming (spec §6: the client "pipes stdin... writes
// EOF\n, then writes each query"). Half-closing lets the daemon's per-line
// reply writes still reach us on the read half while we read the rest of
// the connection to completion.
func sendAll(conn *net.UnixConn, stdin *os.File, queries []string) error {
	w := bufio.NewWriter(conn)

	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		if _, err := fmt.Fprintln(w, scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, wire.EOFLine); err != nil {
		return err
	}

	for _, q := range queries {
		if _, err := fmt.Fprintln(w, q); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return conn.CloseWrite()
}

// buildQueries assembles the ordered list of query lines from -s, -r, and
// bare positional queries, applying each flag's modifier prefix.
func buildQueries(cfg *config.Client) []string {
	var out []string
	for _, q := range cfg.Splits {
		out = append(out, "* "+q)
	}
	for _, q := range cfg.Always {
		out = append(out, "+ "+q)
	}
	out = append(out, cfg.Args.Queries...)
	return out
}
