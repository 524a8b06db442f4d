package service

import "time"

// Restart policy defaults.
const (
	DefaultRestartDelay    = 5 * time.Second
	DefaultMaxRestartDelay = 60 * time.Second
	DefaultStableRun       = 30 * time.Second
)

// RestartPolicy decides whether and when a crashed encoder is started again.
//
// The zero value retries forever at DefaultRestartDelay. MaxRestarts and
// Backoff are opt-in: a permanently broken configuration otherwise keeps
// retrying at the fixed interval.
type RestartPolicy struct {
	Delay       time.Duration // base delay before an automatic start
	MaxRestarts int           // consecutive automatic restarts allowed; 0 = unlimited
	Backoff     bool          // double the delay per consecutive crash
	MaxDelay    time.Duration // backoff ceiling
	StableRun   time.Duration // a run at least this long resets the crash count
}

func (p RestartPolicy) withDefaults() RestartPolicy {
	if p.Delay <= 0 {
		p.Delay = DefaultRestartDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxRestartDelay
	}
	if p.MaxDelay < p.Delay {
		p.MaxDelay = p.Delay
	}
	if p.StableRun <= 0 {
		p.StableRun = DefaultStableRun
	}
	return p
}

// Next returns the delay before restart number attempt (1-based, consecutive
// crashes). ok is false once the ceiling is exceeded.
func (p RestartPolicy) Next(attempt int) (delay time.Duration, ok bool) {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	if p.MaxRestarts > 0 && attempt > p.MaxRestarts {
		return 0, false
	}
	if !p.Backoff {
		return p.Delay, true
	}

	delay = p.Delay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay, true
		}
	}
	return delay, true
}

// Stable reports whether a run of length d counts as healthy.
func (p RestartPolicy) Stable(d time.Duration) bool {
	return d >= p.withDefaults().StableRun
}
