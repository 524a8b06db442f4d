//go:build linux

package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/edirooss/loopcast/internal/domain/stream"
	"github.com/edirooss/loopcast/internal/infrastructure/processmgr"
	"github.com/edirooss/loopcast/pkg/ffmpegcmd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestHelperProcess stands in for the encoder. It is re-executed by the
// supervisor tests with the encoder argv after "--".
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("HELPER_MODE") {
	case "run":
		fmt.Fprintln(os.Stderr, "Input #1, concat, from 'audio_playlist.txt':")
		fmt.Fprintln(os.Stderr, "[concat @ 0x1] Opening 'media/audio/b.mp3' for reading")
		fmt.Fprintln(os.Stderr, "frame=   50 fps=24.7 q=28.0 size=     512kB time=00:00:02.00 bitrate=2500.1kbits/s speed=1x")
		time.Sleep(time.Minute)
		os.Exit(0)
	case "crash":
		fmt.Fprintln(os.Stderr, "rtmp://a.rtmp.youtube.com/live2/****: Broken pipe")
		os.Exit(1)
	case "clean":
		os.Exit(0)
	}
	os.Exit(2)
}

type fakeStore struct {
	mu        sync.Mutex
	settings  stream.StreamSettings
	selection stream.MediaSelection
	err       error
}

func (f *fakeStore) GetSettings(context.Context) (stream.StreamSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings, f.err
}

func (f *fakeStore) GetMediaSelection(context.Context) (stream.MediaSelection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selection.Clone(), f.err
}

func validStore() *fakeStore {
	settings := stream.DefaultSettings()
	settings.StreamKey = "abc"
	return &fakeStore{
		settings: settings,
		selection: stream.MediaSelection{
			VideoPath:     "bg.mp4",
			AudioPlaylist: []string{"media/audio/a.mp3", "media/audio/b.mp3"},
			LoopVideo:     true,
		},
	}
}

type countingRecorder struct {
	mu           sync.Mutex
	starts       int
	crashes      int
	autoRestarts int
}

func (r *countingRecorder) IncStarts()             { r.mu.Lock(); r.starts++; r.mu.Unlock() }
func (r *countingRecorder) IncCrashes()            { r.mu.Lock(); r.crashes++; r.mu.Unlock() }
func (r *countingRecorder) IncAutoRestarts()       { r.mu.Lock(); r.autoRestarts++; r.mu.Unlock() }
func (r *countingRecorder) IncReconnects()         {}
func (r *countingRecorder) ObserveFPS(float64)     {}
func (r *countingRecorder) ObserveBitrate(float64) {}

func (r *countingRecorder) counts() (starts, crashes, autoRestarts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.crashes, r.autoRestarts
}

type fakeReaper struct {
	mu       sync.Mutex
	excluded []int
}

func (f *fakeReaper) Reap(exclude int) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.excluded = append(f.excluded, exclude)
	return nil
}

type harness struct {
	sup    *Supervisor
	store  *fakeStore
	rec    *countingRecorder
	reaper *fakeReaper

	mu     sync.Mutex
	modes  []string // consumed per spawn; the last one repeats
	spawns int
}

func newHarness(t *testing.T, policy RestartPolicy, modes ...string) *harness {
	t.Helper()

	h := &harness{
		store:  validStore(),
		rec:    &countingRecorder{},
		reaper: &fakeReaper{},
		modes:  modes,
	}
	cfg := SupervisorConfig{
		ManifestPath: filepath.Join(t.TempDir(), "temp", "audio_playlist.txt"),
		StopTimeout:  3 * time.Second,
		Restart:      policy,
	}
	h.sup = NewSupervisor(zap.NewNop(), h.store, processmgr.NewLogBuffer(200, nil), cfg,
		WithRecorder(h.rec), WithReaper(h.reaper))
	h.sup.spawn = h.spawn

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, h.sup.Shutdown(ctx))
	})
	return h
}

func (h *harness) spawn(argv []string) (*processmgr.Process, error) {
	h.mu.Lock()
	mode := h.modes[0]
	if len(h.modes) > 1 {
		h.modes = h.modes[1:]
	}
	h.spawns++
	h.mu.Unlock()

	helper := append([]string{os.Args[0], "-test.run=^TestHelperProcess$", "--"}, argv[1:]...)
	env := append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "HELPER_MODE="+mode)
	return processmgr.NewProcess(zap.NewNop(), helper, env)
}

func (h *harness) spawnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.spawns
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.sup.Status().State == want },
		5*time.Second, 5*time.Millisecond, "state %s never reached", want)
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t, RestartPolicy{}, "run")

	before := h.sup.Status()
	h.sup.Stop()
	h.sup.Stop()
	after := h.sup.Status()

	assert.Equal(t, StateIdle, after.State)
	assert.Equal(t, before, after)
	assert.Equal(t, 0, h.spawnCount())
	assert.Empty(t, h.reaper.excluded)
}

func TestStartRunsAndReportsUptime(t *testing.T) {
	h := newHarness(t, RestartPolicy{}, "run")

	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	var clockMu sync.Mutex
	now := base
	h.sup.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		clockMu.Lock()
		now = now.Add(d)
		clockMu.Unlock()
	}

	pid, err := h.sup.Start(context.Background())
	require.NoError(t, err)
	assert.Positive(t, pid)

	st := h.sup.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, pid, st.PID)
	assert.Equal(t, "00:00:00", st.Uptime)

	prev := st.UptimeSeconds
	for _, step := range []time.Duration{time.Second, 0, 59 * time.Second, time.Hour} {
		advance(step)
		st = h.sup.Status()
		assert.Equal(t, StateRunning, st.State)
		assert.GreaterOrEqual(t, st.UptimeSeconds, prev)
		prev = st.UptimeSeconds
	}
	assert.Equal(t, "01:01:00", st.Uptime)

	h.sup.Stop()
	st = h.sup.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, "00:00:00", st.Uptime)
	assert.Zero(t, st.PID)
	assert.Equal(t, []int{pid}, h.reaper.excluded)
}

func TestStartCollectsTelemetry(t *testing.T) {
	h := newHarness(t, RestartPolicy{}, "run")

	_, err := h.sup.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st := h.sup.Status()
		return st.FPS == "24.7" && st.CurrentTrack == "b"
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, "2500.1kbits", h.sup.Status().Bitrate)
	assert.NotEmpty(t, h.sup.Logs(0))
}

func TestStartTwiceIsAlreadyRunning(t *testing.T) {
	h := newHarness(t, RestartPolicy{}, "run")

	_, err := h.sup.Start(context.Background())
	require.NoError(t, err)

	_, err = h.sup.Start(context.Background())
	assert.ErrorIs(t, err, stream.ErrAlreadyRunning)
	assert.Equal(t, 1, h.spawnCount())
	assert.Equal(t, StateRunning, h.sup.Status().State)
}

func TestConcurrentStartSpawnsOnce(t *testing.T) {
	h := newHarness(t, RestartPolicy{}, "run")

	const callers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started int
		already int
	)
	wg.Add(callers)
	for range callers {
		go func() {
			defer wg.Done()
			_, err := h.sup.Start(context.Background())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, stream.ErrAlreadyRunning):
				already++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, started)
	assert.Equal(t, callers-1, already)
	assert.Equal(t, 1, h.spawnCount())
	assert.Equal(t, StateRunning, h.sup.Status().State)
}

func TestStopClearsHandleAfterTimeout(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	h := newHarness(t, RestartPolicy{}, "run")
	h.sup.cfg.StopTimeout = 300 * time.Millisecond
	// The detached grandchild survives the group kill and holds the output
	// pipes open, so the exit is never confirmed within the timeout.
	h.sup.spawn = func([]string) (*processmgr.Process, error) {
		h.mu.Lock()
		h.spawns++
		h.mu.Unlock()
		return processmgr.NewProcess(zap.NewNop(), []string{"sh", "-c", "setsid sleep 2 & exec sleep 30"}, os.Environ())
	}

	_, err := h.sup.Start(context.Background())
	require.NoError(t, err)

	begin := time.Now()
	h.sup.Stop()
	elapsed := time.Since(begin)

	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond)
	assert.Less(t, elapsed, 1500*time.Millisecond)

	st := h.sup.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Zero(t, st.PID)
}

func TestStartBuildFailureDoesNotSpawn(t *testing.T) {
	h := newHarness(t, RestartPolicy{}, "run")
	h.store.selection.AudioPlaylist = nil

	_, err := h.sup.Start(context.Background())
	assert.ErrorIs(t, err, stream.ErrNoAudioAvailable)
	assert.True(t, IsPrecondition(err))

	st := h.sup.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, 0, h.spawnCount())
	assert.NotEmpty(t, st.LastError)
}

func TestStartStoreFailure(t *testing.T) {
	h := newHarness(t, RestartPolicy{}, "run")
	h.store.err = errors.New("redis down")

	_, err := h.sup.Start(context.Background())
	assert.ErrorContains(t, err, "redis down")
	assert.Equal(t, StateIdle, h.sup.Status().State)
}

func TestStartSpawnFailure(t *testing.T) {
	h := newHarness(t, RestartPolicy{}, "run")
	h.sup.spawn = func([]string) (*processmgr.Process, error) {
		return processmgr.NewProcess(zap.NewNop(), []string{"/nonexistent/ffmpeg"}, nil)
	}

	_, err := h.sup.Start(context.Background())
	assert.ErrorIs(t, err, stream.ErrSpawnFailure)
	assert.Equal(t, StateIdle, h.sup.Status().State)

	_, starts, _ := h.rec.counts()
	assert.Zero(t, starts)
}

func TestCrashSchedulesExactlyOneRestart(t *testing.T) {
	const delay = 300 * time.Millisecond
	h := newHarness(t, RestartPolicy{Delay: delay}, "crash", "run")

	var (
		seenMu sync.Mutex
		seen   []State
	)
	build := h.sup.build
	h.sup.build = func(s stream.StreamSettings, m stream.MediaSelection) (*ffmpegcmd.Command, error) {
		seenMu.Lock()
		seen = append(seen, h.sup.Status().State)
		seenMu.Unlock()
		return build(s, m)
	}

	begin := time.Now()
	_, err := h.sup.Start(context.Background())
	require.NoError(t, err)

	h.waitState(t, StateCrashedPendingRestart)
	assert.Equal(t, 1, h.spawnCount(), "restart must wait for the delay")

	h.waitState(t, StateRunning)
	assert.GreaterOrEqual(t, time.Since(begin), delay)
	assert.Equal(t, 2, h.spawnCount())

	// No further restarts while the encoder keeps running.
	time.Sleep(2 * delay)
	assert.Equal(t, 2, h.spawnCount())

	starts, crashes, autoRestarts := h.rec.counts()
	assert.Equal(t, 2, starts)
	assert.Equal(t, 1, crashes)
	assert.Equal(t, 1, autoRestarts)

	st := h.sup.Status()
	assert.Equal(t, 1, st.Restarts)

	seenMu.Lock()
	assert.Equal(t, []State{StateStarting, StateStarting}, seen)
	seenMu.Unlock()
}

func TestStopCancelsPendingRestart(t *testing.T) {
	const delay = 300 * time.Millisecond
	h := newHarness(t, RestartPolicy{Delay: delay}, "crash")

	_, err := h.sup.Start(context.Background())
	require.NoError(t, err)
	h.waitState(t, StateCrashedPendingRestart)

	h.sup.Stop()
	assert.Equal(t, StateIdle, h.sup.Status().State)

	time.Sleep(2 * delay)
	assert.Equal(t, 1, h.spawnCount())
	assert.Equal(t, StateIdle, h.sup.Status().State)
}

func TestManualStartPreemptsPendingRestart(t *testing.T) {
	h := newHarness(t, RestartPolicy{Delay: time.Hour}, "crash", "run")

	_, err := h.sup.Start(context.Background())
	require.NoError(t, err)
	h.waitState(t, StateCrashedPendingRestart)

	_, err = h.sup.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, h.sup.Status().State)
	assert.Equal(t, 0, h.sup.Status().Restarts)
}

func TestRestartLimitLeavesIdle(t *testing.T) {
	h := newHarness(t, RestartPolicy{Delay: 50 * time.Millisecond, MaxRestarts: 2}, "crash")

	_, err := h.sup.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, crashes, _ := h.rec.counts()
		return crashes == 3 && h.sup.Status().State == StateIdle
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 3, h.spawnCount())
	st := h.sup.Status()
	assert.Equal(t, 2, st.Restarts)
	assert.Contains(t, st.LastError, "exited with code 1")
}

func TestCleanExitDoesNotRestart(t *testing.T) {
	h := newHarness(t, RestartPolicy{Delay: 50 * time.Millisecond}, "clean")

	_, err := h.sup.Start(context.Background())
	require.NoError(t, err)
	h.waitState(t, StateIdle)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, h.spawnCount())
}

func TestRestartReplacesEncoder(t *testing.T) {
	h := newHarness(t, RestartPolicy{}, "run")

	first, err := h.sup.Start(context.Background())
	require.NoError(t, err)

	second, err := h.sup.Restart(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, StateRunning, h.sup.Status().State)
	assert.Equal(t, 2, h.spawnCount())
}

func TestRestartFromIdleStarts(t *testing.T) {
	h := newHarness(t, RestartPolicy{}, "run")

	pid, err := h.sup.Restart(context.Background())
	require.NoError(t, err)
	assert.Positive(t, pid)
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatUptime(0))
	assert.Equal(t, "00:00:59", FormatUptime(59*time.Second+900*time.Millisecond))
	assert.Equal(t, "26:03:04", FormatUptime(26*time.Hour+3*time.Minute+4*time.Second))
}
