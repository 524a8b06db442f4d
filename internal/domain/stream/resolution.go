package stream

import (
	"fmt"
	"strconv"
	"strings"
)

// Resolution is an output frame size. Only the sizes in SupportedResolutions are accepted
// by Validate; JSON form is "<width>x<height>".
type Resolution struct {
	Width  int
	Height int
}

// SupportedResolutions is the fixed set of output sizes offered to operators.
var SupportedResolutions = []Resolution{
	{426, 240},
	{640, 360},
	{854, 480},
	{1280, 720},
	{1920, 1080},
	{2560, 1440},
	{3840, 2160},
}

// ParseResolution parses "1280x720" (case-insensitive separator).
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("resolution %q: want <width>x<height>", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolution %q: width: %w", s, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolution %q: height: %w", s, err)
	}
	return Resolution{Width: width, Height: height}, nil
}

func (r Resolution) String() string {
	return strconv.Itoa(r.Width) + "x" + strconv.Itoa(r.Height)
}

// Supported reports whether r is one of SupportedResolutions.
func (r Resolution) Supported() bool {
	for _, s := range SupportedResolutions {
		if s == r {
			return true
		}
	}
	return false
}

func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Resolution) UnmarshalText(b []byte) error {
	parsed, err := ParseResolution(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
