// Package config defines the CLI grammars for itd and it (spec §6), parsed
// with github.com/jessevdk/go-flags: its struct-tag short/long option model
// maps directly onto spec's "-d -f FILE -C DIR -S PATH" flags.
package config

import "github.com/jessevdk/go-flags"

// Daemon is itd's flag set.
//
//	itd [-d] [-f FILE] [-C DIR] [-S PATH]
type Daemon struct {
	Detach    bool   `short:"d" long:"detach" description:"detach (daemonize)"`
	File      string `short:"f" long:"file" default:"it.db" description:"database filename"`
	Home      string `short:"C" long:"home" default:"/var/lib/it" description:"database home directory"`
	Socket    string `short:"S" long:"socket" default:"/tmp/it-sock" description:"Unix socket path"`
	RedisAddr string `long:"redis-addr" default:"127.0.0.1:6379" description:"backing Redis address"`
	RedisDB   int    `long:"redis-db" default:"0" description:"backing Redis logical database"`
	HTTPAddr  string `long:"http-addr" default:"127.0.0.1:8080" description:"loopback debug HTTP address"`
}

// ParseDaemon parses os.Args-style argv into a Daemon config. Exit code 1
// (usage error) is the caller's responsibility, matching spec §6's exit
// code table — ParseDaemon just returns the flags error.
func ParseDaemon(argv []string) (*Daemon, error) {
	var d Daemon
	if _, err := flags.ParseArgs(&d, argv); err != nil {
		return nil, err
	}
	return &d, nil
}

// Client is it's flag set.
//
//	it [-S PATH] [-s QUERY ... | -r QUERY ...] [QUERY ...]
type Client struct {
	Socket string   `short:"S" long:"socket" default:"/tmp/it-sock" description:"Unix socket path"`
	Splits []string `short:"s" long:"splits" description:"query, prefixed with '* ' (show splits)"`
	Always []string `short:"r" long:"always" description:"query, prefixed with '+ ' (always-present)"`
	Args   struct {
		Queries []string `positional-arg-name:"QUERY"`
	} `positional-args:"yes"`
}

// ParseClient parses os.Args-style argv into a Client config.
func ParseClient(argv []string) (*Client, error) {
	var c Client
	if _, err := flags.ParseArgs(&c, argv); err != nil {
		return nil, err
	}
	return &c, nil
}
