// Package config reads the engine's flat KEY=VALUE configuration file
// (spec.md §6): MEMORY_SIZE, QUEUE_SIZE, SHARED_QUEUE_SIZE,
// INDEX_THRESHOLD, RUN_TIME, CPU_SPEED. Grounded on
// original_source/dsms/src/server/config_file_reader.cc, which reads
// the same format line by line, skipping blank lines and '#'
// comments. Built on the standard library's bufio.Scanner — see
// DESIGN.md for why a richer config/serialization library from the
// pack is a worse fit for two-token-per-line text.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Config holds the parsed key=value pairs plus typed accessors for
// the fixed key set spec.md §6 names. Unrecognized keys are kept in
// Raw but otherwise ignored, matching the original reader's
// tolerance of forward-compatible keys.
type Config struct {
	Raw map[string]string
}

// Defaults mirrors the values the original server falls back to when
// a config file omits a key (server/config_file_reader.h's DEFAULT_*
// constants).
func Defaults() *Config {
	return &Config{Raw: map[string]string{
		"MEMORY_SIZE":       "16777216",
		"QUEUE_SIZE":        "64",
		"SHARED_QUEUE_SIZE": "256",
		"INDEX_THRESHOLD":   "0.8",
		"RUN_TIME":          "0",
		"CPU_SPEED":         "1000",
	}}
}

// Load reads key=value pairs from path, overlaying Defaults().
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read parses key=value pairs from r, overlaying Defaults().
func Read(r io.Reader) (*Config, error) {
	cfg := Defaults()
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, val, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("config: line %d: missing '=': %q", line, text)
		}
		cfg.Raw[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) str(key string) string { return c.Raw[key] }

// Int returns key's value parsed as an integer.
func (c *Config) Int(key string) (int, error) {
	v := c.str(key)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer: %w", key, v, err)
	}
	return n, nil
}

// Float returns key's value parsed as a float64.
func (c *Config) Float(key string) (float64, error) {
	v := c.str(key)
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a number: %w", key, v, err)
	}
	return n, nil
}

// MemorySize is MEMORY_SIZE in bytes: the mempool.Pool's total budget.
func (c *Config) MemorySize() (int, error) { return c.Int("MEMORY_SIZE") }

// QueueSize is QUEUE_SIZE: the capacity of an interior element queue
// between two operators run by the same scheduler. The value is used
// directly as an element count; it is not converted from pages.
func (c *Config) QueueSize() (int, error) { return c.Int("QUEUE_SIZE") }

// SharedQueueSize is SHARED_QUEUE_SIZE in pages: the capacity of a
// boundary queue crossing into an I/O goroutine (spec.md §5).
func (c *Config) SharedQueueSize() (int, error) { return c.Int("SHARED_QUEUE_SIZE") }

// IndexThreshold is INDEX_THRESHOLD, the hash index's split load
// factor (0 < x < 1).
func (c *Config) IndexThreshold() (float64, error) { return c.Float("INDEX_THRESHOLD") }

// RunTime is RUN_TIME in logical scheduler units; 0 means run forever.
func (c *Config) RunTime() (int, error) { return c.Int("RUN_TIME") }

// CPUSpeed is CPU_SPEED in MHz, used to convert CPU tick measurements
// into seconds for the system stream (monitor.CPUTicksToSeconds).
func (c *Config) CPUSpeed() (int, error) { return c.Int("CPU_SPEED") }
