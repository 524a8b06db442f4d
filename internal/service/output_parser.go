package service

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/edirooss/loopcast/internal/infrastructure/processmgr"
)

// Telemetry defaults shown before the encoder reports anything.
const (
	DefaultFPS     = "0"
	DefaultBitrate = "0 kbps"
)

var (
	fpsRe       = regexp.MustCompile(`fps=\s*([0-9.]+)`)
	bitrateRe   = regexp.MustCompile(`bitrate=\s*([0-9.]+\w+)`)
	reconnectRe = regexp.MustCompile(`(?i)\b(reconnecting|will reconnect)\b`)
	openingRe   = regexp.MustCompile(`Opening '([^']+)' for reading`)
)

// audioExts are the extensions treated as playlist tracks when the encoder
// opens a new input.
var audioExts = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".aac": {}, ".flac": {}, ".ogg": {}, ".m4a": {}, ".opus": {},
}

// Telemetry is a point-in-time view of what the encoder last reported.
type Telemetry struct {
	FPS           string
	Bitrate       string
	CurrentTrack  string
	LastReconnect time.Time // zero until the first reconnect marker
	Reconnects    int
}

// ParserHooks lets callers observe parsed events (metrics). Each hook fires
// only for a value present on the line.
type ParserHooks struct {
	OnFPS       func(fps float64)
	OnBitrate   func(kbps float64)
	OnReconnect func()
}

// OutputParser turns encoder diagnostic lines into telemetry and appends each
// line to the stream log.
//
// Parsing is best-effort: the diagnostic format is not a stable contract of the
// encoder. Lines without a known marker leave telemetry untouched, so values may
// go stale but never fail.
type OutputParser struct {
	sink  *processmgr.LogBuffer
	hooks ParserHooks
	now   func() time.Time

	mu            sync.RWMutex
	fps           string
	bitrate       string
	track         string // last track observed in the output
	seedTrack     string // first playlist entry; shown until a track is observed
	lastReconnect time.Time
	reconnects    int
}

// NewOutputParser returns a parser writing to sink (nil discards lines).
func NewOutputParser(sink *processmgr.LogBuffer, hooks ParserHooks) *OutputParser {
	return &OutputParser{
		sink:    sink,
		hooks:   hooks,
		now:     time.Now,
		fps:     DefaultFPS,
		bitrate: DefaultBitrate,
	}
}

// HandleLine satisfies processmgr.LineHandler.
func (p *OutputParser) HandleLine(_ string, line string) { p.Feed(line) }

// Feed parses one line of encoder output.
func (p *OutputParser) Feed(line string) {
	if p.sink != nil {
		p.sink.Append(line)
	}

	var (
		fps, bitrate, track string
		reconnect           bool
	)
	if m := fpsRe.FindStringSubmatch(line); m != nil {
		fps = m[1]
	}
	if m := bitrateRe.FindStringSubmatch(line); m != nil {
		bitrate = m[1]
	}
	if reconnectRe.MatchString(line) {
		reconnect = true
	}
	track = trackFromLine(line)

	if fps == "" && bitrate == "" && track == "" && !reconnect {
		return
	}

	p.mu.Lock()
	if fps != "" {
		p.fps = fps
	}
	if bitrate != "" {
		p.bitrate = bitrate
	}
	if track != "" {
		p.track = track
	}
	if reconnect {
		p.lastReconnect = p.now()
		p.reconnects++
	}
	p.mu.Unlock()

	if reconnect && p.hooks.OnReconnect != nil {
		p.hooks.OnReconnect()
	}
	if fps != "" && p.hooks.OnFPS != nil {
		if f, err := strconv.ParseFloat(fps, 64); err == nil {
			p.hooks.OnFPS(f)
		}
	}
	if bitrate != "" && p.hooks.OnBitrate != nil {
		if k, ok := kbps(bitrate); ok {
			p.hooks.OnBitrate(k)
		}
	}
}

// trackFromLine extracts the track name from an input-open marker. Lines that
// belong to the stream enumeration banner ("Input #N, ...") are ignored.
func trackFromLine(line string) string {
	if strings.HasPrefix(strings.TrimSpace(line), "Input #") {
		return ""
	}
	m := openingRe.FindStringSubmatch(line)
	if m == nil {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(m[1]))
	if _, ok := audioExts[ext]; !ok {
		return ""
	}
	return TrackName(m[1])
}

// TrackName is the base name of path without its extension.
func TrackName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// kbps parses values such as "2500.3kbits" into kbit/s. ok is false for
// unknown units.
func kbps(v string) (float64, bool) {
	i := strings.IndexFunc(v, func(r rune) bool { return (r < '0' || r > '9') && r != '.' })
	if i <= 0 {
		return 0, false
	}
	n, err := strconv.ParseFloat(v[:i], 64)
	if err != nil {
		return 0, false
	}
	switch unit := strings.ToLower(v[i:]); {
	case strings.HasPrefix(unit, "kbit"):
		return n, true
	case strings.HasPrefix(unit, "mbit"):
		return n * 1000, true
	case strings.HasPrefix(unit, "bit"):
		return n / 1000, true
	default:
		return 0, false
	}
}

// Reset restores telemetry defaults for a new run and seeds the track shown
// until the encoder reports one. The last reconnect time is kept.
func (p *OutputParser) Reset(seedTrack string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fps = DefaultFPS
	p.bitrate = DefaultBitrate
	p.track = ""
	p.seedTrack = seedTrack
}

// Snapshot returns the current telemetry.
func (p *OutputParser) Snapshot() Telemetry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	track := p.track
	if track == "" {
		track = p.seedTrack
	}
	return Telemetry{
		FPS:           p.fps,
		Bitrate:       p.bitrate,
		CurrentTrack:  track,
		LastReconnect: p.lastReconnect,
		Reconnects:    p.reconnects,
	}
}
