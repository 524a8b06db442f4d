package avurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDestination(t *testing.T) {
	u, err := ParseDestination("rtmp://a.rtmp.youtube.com/live2")
	require.NoError(t, err)
	assert.Equal(t, &URL{Scheme: "rtmp", Host: "a.rtmp.youtube.com", Path: "/live2"}, u)

	u, err = ParseDestination("RTMPS://[::1]:1935/app")
	require.NoError(t, err)
	assert.Equal(t, "rtmps", u.Scheme)
	assert.Equal(t, "::1", u.Host)
	assert.Equal(t, "1935", u.Port)

	for _, bad := range []string{
		"",
		"http://example.com/live",
		"rtmp:///live",
		"rtmp://user:pw@example.com/live",
		"rtmp://example.com:0/live",
		"rtmp://example.com:01935/live",
		"rtmp://300.1.1.1/live",
		"rtmp://-bad-.example/live",
		"rtmp://example.com/live?key=x",
	} {
		_, err := ParseDestination(bad)
		assert.Error(t, err, bad)
	}
}
