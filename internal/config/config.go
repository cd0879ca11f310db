// Package config loads the broker's configuration: hard defaults,
// overlaid with a flat "key value" text file, overlaid with CLI flags.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sevag-tafnakaji/sol-broker/internal/logx"
)

// SocketFamily selects between a Unix domain socket and TCP/INET.
type SocketFamily string

const (
	Unix SocketFamily = "unix"
	Inet SocketFamily = "inet"
)

// Config is the broker's immutable-after-startup configuration. Field
// names mirror the keys recognized in the config file (see Load).
type Config struct {
	Hostname         string
	Port             string
	SocketFamily     SocketFamily
	TCPBacklog       int
	MaxRequestSize   int
	PollTimeout      time.Duration // -1 means block indefinitely
	StatsPubInterval time.Duration
	LogLevel         logx.Level
}

// Default returns the broker's built-in defaults, matching
// original_source/src/config.h.
func Default() *Config {
	return &Config{
		Hostname:         "127.0.0.1",
		Port:             "1883",
		SocketFamily:     Inet,
		TCPBacklog:       128,
		MaxRequestSize:   2 * 1024 * 1024,
		PollTimeout:      -1,
		StatsPubInterval: 10 * time.Second,
		LogLevel:         logx.Warn,
	}
}

// Load reads a flat "key value" configuration file on top of the
// defaults. A missing file is not an error (spec.md's config file is
// optional); unrecognized keys are ignored. One "key value" pair per
// line; lines starting with "#" or blank lines are skipped.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := cfg.parse(f); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) parse(f *os.File) error {
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		key := strings.TrimSpace(fields[0])
		value := strings.TrimSpace(fields[1])
		c.set(key, value)
	}
	return scanner.Err()
}

func (c *Config) set(key, value string) {
	switch key {
	case "hostname":
		c.Hostname = value
	case "port":
		c.Port = value
	case "socket_family":
		switch strings.ToUpper(value) {
		case "UNIX":
			c.SocketFamily = Unix
		case "INET":
			c.SocketFamily = Inet
		}
	case "tcp_backlog":
		if n, err := strconv.Atoi(value); err == nil {
			c.TCPBacklog = n
		}
	case "max_request_size":
		if n, err := strconv.Atoi(value); err == nil {
			c.MaxRequestSize = n
		}
	case "epoll_timeout":
		if n, err := strconv.Atoi(value); err == nil {
			if n < 0 {
				c.PollTimeout = -1
			} else {
				c.PollTimeout = time.Duration(n) * time.Millisecond
			}
		}
	case "stats_pub_interval":
		if n, err := strconv.Atoi(value); err == nil {
			c.StatsPubInterval = time.Duration(n) * time.Second
		}
	case "loglevel":
		c.LogLevel = logx.ParseLevel(value)
	}
}

// ApplyCLI overlays CLI-supplied overrides. Empty strings are "not set".
func (c *Config) ApplyCLI(addr, port string, verbose bool) {
	if addr != "" {
		c.Hostname = addr
	}
	if port != "" {
		c.Port = port
	}
	if verbose {
		c.LogLevel = logx.Debug
	}
}

// Validate rejects configurations the broker cannot start with.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return fmt.Errorf("config: hostname must not be empty")
	}
	if c.SocketFamily == Inet {
		if c.Port == "" {
			return fmt.Errorf("config: port required for inet socket_family")
		}
	} else if c.SocketFamily != Unix {
		return fmt.Errorf("config: socket_family must be UNIX or INET, got %q", c.SocketFamily)
	}
	if c.MaxRequestSize <= 0 {
		return fmt.Errorf("config: max_request_size must be positive")
	}
	if c.TCPBacklog <= 0 {
		return fmt.Errorf("config: tcp_backlog must be positive")
	}
	if c.StatsPubInterval <= 0 {
		return fmt.Errorf("config: stats_pub_interval must be positive")
	}
	return nil
}
