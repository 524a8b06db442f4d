//go:build linux

package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/edirooss/loopcast/internal/domain/stream"
	"github.com/edirooss/loopcast/internal/infrastructure/processmgr"
	"github.com/edirooss/loopcast/pkg/ffmpegcmd"
	"go.uber.org/zap"
)

// -----------------------------------------------------------------------------
// Supervisor
// -----------------------------------------------------------------------------
//
// Runtime model
//   • One encoder at most. Start/Stop/Restart are serialized by opMu, so the
//     check-then-spawn and check-then-kill sequences never interleave.
//   • mu guards the state machine and is the only lock taken by the exit
//     watcher and the restart timer's bookkeeping. Status takes mu for reading.
//   • Output readers never touch mu; they only feed the OutputParser.
//
// State machine
//   Idle → Starting → Running → Stopping → Idle
//                             ↘ CrashedPendingRestart → Starting
//
// Contract
//   • Stop is idempotent. Idle stays Idle without touching telemetry.
//   • Stop skips the graceful phase: the encoder group gets SIGKILL right away.
//     If the exit is not confirmed within StopTimeout the handle is cleared anyway.
//   • A non-zero exit that was not requested schedules one automatic Start after
//     the policy delay (time.AfterFunc, never a blocking sleep).
//   • A clean exit (status 0) returns to Idle without a restart.

// DefaultStopTimeout bounds how long Stop waits for a confirmed exit.
const DefaultStopTimeout = 2 * time.Second

// ConfigSource provides the settings and media selection snapshot for a start.
type ConfigSource interface {
	GetSettings(ctx context.Context) (stream.StreamSettings, error)
	GetMediaSelection(ctx context.Context) (stream.MediaSelection, error)
}

// Reaper removes encoder instances not tracked by the supervisor.
type Reaper interface {
	Reap(exclude int) []int
}

// Recorder receives lifecycle events, typically for metrics.
type Recorder interface {
	IncStarts()
	IncCrashes()
	IncAutoRestarts()
	IncReconnects()
	ObserveFPS(fps float64)
	ObserveBitrate(kbps float64)
}

type nopRecorder struct{}

func (nopRecorder) IncStarts()             {}
func (nopRecorder) IncCrashes()            {}
func (nopRecorder) IncAutoRestarts()       {}
func (nopRecorder) IncReconnects()         {}
func (nopRecorder) ObserveFPS(float64)     {}
func (nopRecorder) ObserveBitrate(float64) {}

// SupervisorConfig configures the encoder supervisor.
type SupervisorConfig struct {
	Binary       string        // encoder binary; ffmpegcmd.DefaultBinary when empty
	ManifestPath string        // concat manifest location
	CheckMedia   bool          // stat every selected file before spawning
	StopTimeout  time.Duration // DefaultStopTimeout when <= 0
	ReapOrphans  bool          // kill untracked encoders using the same manifest on Stop
	Env          []string      // encoder environment; nil inherits

	Restart RestartPolicy
}

// SupervisorOption customizes a Supervisor.
type SupervisorOption func(*Supervisor)

// WithRecorder sets the lifecycle event recorder.
func WithRecorder(r Recorder) SupervisorOption {
	return func(s *Supervisor) {
		if r != nil {
			s.rec = r
		}
	}
}

// WithReaper overrides the orphan reaper.
func WithReaper(r Reaper) SupervisorOption {
	return func(s *Supervisor) { s.reaper = r }
}

// Supervisor owns the encoder process and its telemetry.
type Supervisor struct {
	log       *zap.Logger
	store     ConfigSource
	streamLog *processmgr.LogBuffer
	parser    *OutputParser
	cfg       SupervisorConfig
	rec       Recorder
	reaper    Reaper

	build func(stream.StreamSettings, stream.MediaSelection) (*ffmpegcmd.Command, error)
	spawn func(argv []string) (*processmgr.Process, error)
	now   func() time.Time

	opMu sync.Mutex // serializes Start/Stop/Restart

	mu           sync.RWMutex
	state        State
	proc         *processmgr.Process
	stopping     bool
	startedAt    time.Time
	restartTimer *time.Timer
	restartGen   uint64 // invalidates restart callbacks that lost the race with Stop/Start
	crashes      int    // consecutive crashes
	restarts     int    // automatic restarts since the last manual start
	lastError    string

	watchers sync.WaitGroup
}

// NewSupervisor wires a supervisor reading its configuration from store and
// logging stream events to streamLog.
func NewSupervisor(log *zap.Logger, store ConfigSource, streamLog *processmgr.LogBuffer, cfg SupervisorConfig, opts ...SupervisorOption) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Binary == "" {
		cfg.Binary = ffmpegcmd.DefaultBinary
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if streamLog == nil {
		streamLog = processmgr.NewLogBuffer(processmgr.DefaultLogLines, nil)
	}

	s := &Supervisor{
		log:       log.Named("supervisor"),
		store:     store,
		streamLog: streamLog,
		cfg:       cfg,
		rec:       nopRecorder{},
		now:       time.Now,
		state:     StateIdle,
	}
	if cfg.ReapOrphans {
		s.reaper = processmgr.NewOrphanReaper(s.log.Named("reaper"), cfg.Binary, cfg.ManifestPath)
	}
	for _, opt := range opts {
		opt(s)
	}

	s.parser = NewOutputParser(streamLog, ParserHooks{
		OnFPS:       func(fps float64) { s.rec.ObserveFPS(fps) },
		OnBitrate:   func(kbps float64) { s.rec.ObserveBitrate(kbps) },
		OnReconnect: func() { s.rec.IncReconnects() },
	})

	s.build = func(settings stream.StreamSettings, selection stream.MediaSelection) (*ffmpegcmd.Command, error) {
		opts := ffmpegcmd.Options{Binary: cfg.Binary, ManifestPath: cfg.ManifestPath}
		if cfg.CheckMedia {
			opts.Stat = os.Stat
		}
		return ffmpegcmd.Build(settings, selection, opts)
	}
	encLog := log.Named("encoder")
	s.spawn = func(argv []string) (*processmgr.Process, error) {
		return processmgr.NewProcess(encLog, argv, cfg.Env)
	}

	return s
}

// Start builds the encoder command from the current configuration and spawns
// it. It returns the encoder pid.
func (s *Supervisor) Start(ctx context.Context) (int, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.start(ctx, false)
}

// Restart stops the encoder (if any) and starts it again as one operation.
func (s *Supervisor) Restart(ctx context.Context) (int, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.streamLog.Append("Restarting stream...")
	s.stop()
	return s.start(ctx, false)
}

// Stop kills the encoder. It is a no-op when nothing is running and cancels a
// pending automatic restart.
func (s *Supervisor) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.stop()
}

// Shutdown stops the encoder and waits for the exit watcher to finish or ctx
// to expire. Used on host shutdown.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.Stop()

	done := make(chan struct{})
	go func() {
		s.watchers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) start(ctx context.Context, auto bool) (int, error) {
	s.mu.Lock()
	if s.proc != nil {
		s.mu.Unlock()
		return 0, stream.ErrAlreadyRunning
	}
	s.cancelRestartLocked()
	if !auto {
		s.crashes = 0
		s.restarts = 0
	}
	s.state = StateStarting
	s.mu.Unlock()

	s.streamLog.Append("Starting stream...")

	pid, err := s.launch(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateIdle
		s.lastError = err.Error()
		s.mu.Unlock()

		s.streamLog.Append("Failed to start stream: " + err.Error())
		return 0, err
	}
	return pid, nil
}

// launch runs the Starting phase: snapshot, build, spawn, attach.
func (s *Supervisor) launch(ctx context.Context) (int, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		s.log.Error("failed to load settings", zap.Error(err))
		return 0, fmt.Errorf("load settings: %w", err)
	}
	selection, err := s.store.GetMediaSelection(ctx)
	if err != nil {
		s.log.Error("failed to load media selection", zap.Error(err))
		return 0, fmt.Errorf("load media selection: %w", err)
	}

	cmd, err := s.build(settings, selection)
	if err != nil {
		s.log.Warn("encoder command rejected",
			zap.String("video", selection.VideoPath),
			zap.Int("playlist_len", len(selection.AudioPlaylist)),
			zap.Error(err))
		return 0, err
	}
	if len(cmd.Dropped) > 0 {
		s.log.Warn("audio entries dropped from manifest", zap.Strings("dropped", cmd.Dropped))
		s.streamLog.Appendf("Skipped %d audio file(s) with unsupported characters", len(cmd.Dropped))
	}

	redacted := cmd.Redacted(settings.StreamKey)
	s.log.Info("spawning encoder", zap.Strings("argv", redacted), zap.String("manifest", cmd.ManifestPath))
	s.streamLog.Append("Command: " + ffmpegcmd.QuoteArgv(redacted))

	proc, err := s.spawn(cmd.Argv)
	if err != nil {
		s.log.Error("encoder setup failed", zap.Error(err))
		return 0, fmt.Errorf("%w: %v", stream.ErrSpawnFailure, err)
	}

	var seed string
	if len(cmd.Playlist) > 0 {
		seed = TrackName(cmd.Playlist[0])
	}
	s.parser.Reset(seed)

	if err := proc.Start(s.parser.HandleLine); err != nil {
		return 0, fmt.Errorf("%w: %v", stream.ErrSpawnFailure, err)
	}

	pid := proc.PID()

	s.mu.Lock()
	s.proc = proc
	s.stopping = false
	s.startedAt = s.now()
	s.state = StateRunning
	s.lastError = ""
	s.mu.Unlock()

	s.rec.IncStarts()
	s.watchers.Add(1)
	go s.watch(proc)

	s.log.Info("encoder running", zap.Int("pid", pid))
	s.streamLog.Appendf("Stream started successfully (pid %d)", pid)
	return pid, nil
}

func (s *Supervisor) stop() {
	s.mu.Lock()
	s.cancelRestartLocked()
	proc := s.proc
	if proc == nil {
		if s.state == StateCrashedPendingRestart {
			s.log.Info("pending restart cancelled")
			s.streamLog.Append("Pending restart cancelled")
		}
		s.state = StateIdle
		s.mu.Unlock()
		return
	}
	s.stopping = true
	s.state = StateStopping
	s.mu.Unlock()

	pid := proc.PID()
	s.streamLog.Append("Stopping stream...")

	if s.reaper != nil {
		if pids := s.reaper.Reap(pid); len(pids) > 0 {
			s.log.Warn("killed untracked encoders", zap.Ints("pids", pids))
		}
	}

	if err := proc.Kill(); err != nil {
		s.log.Warn("kill failed", zap.Int("pid", pid), zap.Error(err))
	}

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-proc.Done():
	case <-timer.C:
		s.log.Warn("encoder exit not confirmed; clearing handle",
			zap.Int("pid", pid), zap.Duration("timeout", s.cfg.StopTimeout))
	}

	s.mu.Lock()
	if s.proc == proc {
		s.proc = nil
		s.startedAt = time.Time{}
		s.stopping = false
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.log.Info("encoder stopped", zap.Int("pid", pid))
	s.streamLog.Append("Stream stopped")
}

// watch waits for proc to be reaped and drives the exit transitions.
func (s *Supervisor) watch(proc *processmgr.Process) {
	defer s.watchers.Done()

	<-proc.Done()
	st := proc.Exit()

	s.mu.Lock()
	if s.proc != proc {
		// Stop already cleared this handle.
		s.mu.Unlock()
		return
	}

	ranFor := s.now().Sub(s.startedAt)
	s.proc = nil
	s.startedAt = time.Time{}

	if s.stopping {
		s.stopping = false
		s.state = StateIdle
		s.mu.Unlock()
		return
	}

	if st.Clean() {
		s.state = StateIdle
		s.mu.Unlock()
		s.log.Info("encoder finished", zap.Int("pid", proc.PID()))
		s.streamLog.Append("FFmpeg process exited with code 0")
		return
	}

	if s.cfg.Restart.Stable(ranFor) {
		s.crashes = 0
	}
	s.crashes++
	attempt := s.crashes
	delay, ok := s.cfg.Restart.Next(attempt)
	exitErr := fmt.Errorf("%w: %s", stream.ErrUnexpectedExit, describeExit(st))
	s.lastError = exitErr.Error()

	if !ok {
		s.state = StateIdle
		s.mu.Unlock()

		s.rec.IncCrashes()
		s.log.Error("restart limit reached; giving up",
			zap.Int("pid", proc.PID()), zap.Int("crashes", attempt), zap.Error(exitErr))
		s.streamLog.Appendf("%s; restart limit reached, stream stopped", describeExit(st))
		return
	}

	s.state = StateCrashedPendingRestart
	s.restartGen++
	gen := s.restartGen
	s.restartTimer = time.AfterFunc(delay, func() { s.autoRestart(gen) })
	s.mu.Unlock()

	s.rec.IncCrashes()
	s.log.Warn("encoder crashed; restart scheduled",
		zap.Int("pid", proc.PID()),
		zap.Duration("ran_for", ranFor),
		zap.Duration("delay", delay),
		zap.Int("attempt", attempt),
		zap.Error(exitErr))
	s.streamLog.Appendf("%s, restarting in %s", describeExit(st), delay)
}

// autoRestart is the restart timer callback.
func (s *Supervisor) autoRestart(gen uint64) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateCrashedPendingRestart || s.restartGen != gen {
		s.mu.Unlock()
		return
	}
	s.restartTimer = nil
	s.restarts++
	s.mu.Unlock()

	s.rec.IncAutoRestarts()
	s.log.Info("automatic restart")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.start(ctx, true); err != nil {
		s.log.Error("automatic restart failed", zap.Error(err))
	}
}

// cancelRestartLocked drops any pending automatic restart. Callers hold mu.
func (s *Supervisor) cancelRestartLocked() {
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	s.restartGen++
}

func describeExit(st processmgr.ExitStatus) string {
	switch {
	case st.Signaled:
		return "FFmpeg process terminated by signal " + st.Signal
	case st.Err != nil:
		return "FFmpeg process wait failed: " + st.Err.Error()
	default:
		return fmt.Sprintf("FFmpeg process exited with code %d", st.Code)
	}
}

// Status returns the current state, uptime and telemetry.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	st := Status{
		State:     s.state,
		Restarts:  s.restarts,
		LastError: s.lastError,
	}
	var up time.Duration
	if s.proc != nil {
		st.PID = s.proc.PID()
		up = s.now().Sub(s.startedAt)
	}
	s.mu.RUnlock()

	if up < 0 {
		up = 0
	}
	st.Uptime = FormatUptime(up)
	st.UptimeSeconds = up.Seconds()

	t := s.parser.Snapshot()
	st.FPS = t.FPS
	st.Bitrate = t.Bitrate
	st.CurrentTrack = t.CurrentTrack
	st.LastReconnect = t.LastReconnect
	st.Reconnects = t.Reconnects
	return st
}

// Logs returns up to n stream log lines, oldest first (n <= 0: all retained).
func (s *Supervisor) Logs(n int) []string { return s.streamLog.Tail(n) }
