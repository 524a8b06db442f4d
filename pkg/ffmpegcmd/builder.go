// Package ffmpegcmd builds the encoder invocation for the loop broadcast.
//
// Design:
//
//   - Command construction is deterministic: the same settings and selection
//     always produce the same argv. The only side effect of Build is writing the
//     concat manifest, and it completes before Build returns so the manifest is on
//     disk before any process is spawned.
//   - argv[0] is always the encoder binary, mirroring exec.Command conventions.
//   - QuoteArgv renders a shell-quoted form for logs; callers mask the stream
//     key with Command.Redacted before logging.
//
// Usage:
//
//	cmd, err := ffmpegcmd.Build(settings, selection, ffmpegcmd.Options{ManifestPath: p})
//	exec.Command(cmd.Argv[0], cmd.Argv[1:]...)
package ffmpegcmd

import (
	"strconv"
	"strings"
)

// Builder constructs argv and shell-safe command strings for the encoder.
//
// The Builder implements a fluent API; it is NOT concurrency-safe.
// Treat a Builder as a single-use, short-lived value.
type Builder struct {
	args []string // argv including binary name at index 0
}

// NewBuilder returns a Builder pre-seeded with the binary name.
func NewBuilder(binary string) *Builder {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Builder{args: []string{binary}}
}

// WithFlag appends a flag followed by its value (always emitted).
func (b *Builder) WithFlag(flag, val string) *Builder {
	b.args = append(b.args, flag, val)
	return b
}

// WithIntFlag appends a flag with a base-10 int value (always emitted).
func (b *Builder) WithIntFlag(flag string, val int) *Builder {
	b.args = append(b.args, flag, strconv.Itoa(val))
	return b
}

// WithKbpsFlag appends a flag with a "<n>k" rate value.
func (b *Builder) WithKbpsFlag(flag string, kbps int) *Builder {
	b.args = append(b.args, flag, strconv.Itoa(kbps)+"k")
	return b
}

// WithSwitch appends a bare flag.
func (b *Builder) WithSwitch(flag string) *Builder {
	b.args = append(b.args, flag)
	return b
}

// WithFlagIf appends a flag/value pair only when cond holds.
func (b *Builder) WithFlagIf(cond bool, flag, val string) *Builder {
	if cond {
		b.args = append(b.args, flag, val)
	}
	return b
}

// WithString appends a positional argument if non-empty.
func (b *Builder) WithString(arg string) *Builder {
	if arg != "" {
		b.args = append(b.args, arg)
	}
	return b
}

// BuildArgv returns a copy of the argument vector.
func (b *Builder) BuildArgv() []string {
	out := make([]string, len(b.args))
	copy(out, b.args)
	return out
}

// QuoteArgv renders argv as a POSIX shell command line.
func QuoteArgv(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		quoted[i] = shQuote(a)
	}
	return strings.Join(quoted, " ")
}

// RedactURL masks key where it forms the final path segment of publishURL.
// Any other URL, or an empty key, is returned unchanged.
func RedactURL(publishURL, key string) string {
	if key == "" || !strings.HasSuffix(publishURL, "/"+key) {
		return publishURL
	}
	return strings.TrimSuffix(publishURL, key) + "****"
}

// shQuote returns a POSIX-safe single-quoted token.
func shQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
