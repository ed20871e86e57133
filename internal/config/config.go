// Package config provides the .env-file loading and typed environment
// variable helpers shared by the decoder, streamer, backfill and sink
// entrypoints. The cmd packages define no command-line flags; each reads its
// settings by calling these helpers with a variable name and default,
// generalizing the single-command loadEnvFile()+os.Getenv()
// pattern to four commands with int/bool/duration/list-valued settings.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment,
// skipping blank lines and lines starting with '#'. It never overrides a
// variable already set in the environment, so real env vars win over the
// file, and it is a no-op (not an error) when path doesn't exist.
func LoadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// String returns the named environment variable, or def if unset/empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the named environment variable parsed as an int, or def if
// unset, empty, or unparsable.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Uint64 returns the named environment variable parsed as a uint64, or def
// if unset, empty, or unparsable. Used for slot numbers.
func Uint64(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the named environment variable parsed as a bool, or def if
// unset, empty, or unparsable.
func Bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Duration returns the named environment variable parsed as a
// time.Duration, or def if unset, empty, or unparsable.
func Duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// List splits the named comma-separated environment variable into trimmed,
// non-empty fields, or returns def if unset/empty.
func List(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
