package ffmpegcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderOrderAndConditionals(t *testing.T) {
	b := NewBuilder("")
	b.WithSwitch("-y").
		WithFlagIf(true, "-t", "5").
		WithFlagIf(false, "-ss", "1").
		WithIntFlag("-r", 25).
		WithKbpsFlag("-b:v", 800).
		WithString("out.flv")

	assert.Equal(t, []string{"ffmpeg", "-y", "-t", "5", "-r", "25", "-b:v", "800k", "out.flv"}, b.BuildArgv())
}

func TestBuilderBuildArgvReturnsCopy(t *testing.T) {
	b := NewBuilder("/usr/bin/ffmpeg").WithString("x")
	argv := b.BuildArgv()
	argv[1] = "mutated"
	assert.Equal(t, []string{"/usr/bin/ffmpeg", "x"}, b.BuildArgv())
	assert.Equal(t, `'/usr/bin/ffmpeg' 'x'`, QuoteArgv(b.BuildArgv()))
}
