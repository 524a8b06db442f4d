//go:build linux

package processmgr

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// OrphanReaper kills encoder instances left behind by earlier runs: processes
// whose comm matches the encoder binary and whose command line references the
// manifest path. It never touches the tracked pid passed to Reap.
type OrphanReaper struct {
	log      *zap.Logger
	procRoot string
	comm     string // process name as shown in /proc/<pid>/comm
	marker   string // substring the command line must contain; empty matches any
	kill     func(pid int) error
}

// NewOrphanReaper scans /proc for processes named like binary whose command
// line contains marker.
func NewOrphanReaper(log *zap.Logger, binary, marker string) *OrphanReaper {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrphanReaper{
		log:      log,
		procRoot: "/proc",
		comm:     commName(binary),
		marker:   marker,
		kill:     func(pid int) error { return syscall.Kill(pid, syscall.SIGKILL) },
	}
}

// commName truncates the binary basename the way the kernel does (15 bytes).
func commName(binary string) string {
	name := filepath.Base(binary)
	if len(name) > 15 {
		name = name[:15]
	}
	return name
}

// Reap SIGKILLs every matching process except exclude and its own pid, and
// returns the pids it signalled. Failures are logged and skipped.
func (r *OrphanReaper) Reap(exclude int) []int {
	ents, err := os.ReadDir(r.procRoot)
	if err != nil {
		r.log.Warn("orphan scan failed", zap.String("proc", r.procRoot), zap.Error(err))
		return nil
	}

	self := os.Getpid()
	var killed []int

	for _, e := range ents {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || !e.IsDir() || pid == exclude || pid == self {
			continue
		}
		if !r.matches(pid) {
			continue
		}

		if err := r.kill(pid); err != nil {
			if !errors.Is(err, syscall.ESRCH) {
				r.log.Warn("orphan kill failed", zap.Int("pid", pid), zap.Error(err))
			}
			continue
		}
		r.log.Info("orphan encoder killed", zap.Int("pid", pid))
		killed = append(killed, pid)
	}

	return killed
}

func (r *OrphanReaper) matches(pid int) bool {
	dir := filepath.Join(r.procRoot, strconv.Itoa(pid))

	comm, err := os.ReadFile(filepath.Join(dir, "comm"))
	if err != nil || strings.TrimSpace(string(comm)) != r.comm {
		return false
	}
	if r.marker == "" {
		return true
	}

	cmdline, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err != nil {
		return false
	}
	// argv is NUL-separated
	return bytes.Contains(bytes.ReplaceAll(cmdline, []byte{0}, []byte{' '}), []byte(r.marker))
}
