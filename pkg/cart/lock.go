package cart

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"

	cferrors "github.com/cartfriend/cartfriend/go/cartfriend/pkg/errors"
)

// IsProcessRunning reports whether pid names a live process. Signal 0
// probes for existence without delivering anything.
func IsProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// HostLock keeps two host processes from operating on the same image pair.
// It is unrelated to the flash write lock of Driver.
type HostLock struct {
	fs     afero.Fs
	path   string
	pid    int
	logger hclog.Logger

	// alive reports whether a PID recorded in an existing lock file still
	// runs. Tests replace it.
	alive func(pid int) bool
}

// NewHostLock prepares a lock file at path. Nothing is created until
// Acquire.
func NewHostLock(fs afero.Fs, path string, logger hclog.Logger) *HostLock {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &HostLock{
		fs:     fs,
		path:   path,
		pid:    os.Getpid(),
		logger: logger,
		alive:  IsProcessRunning,
	}
}

// Acquire takes the lock, clearing a stale lock left by a dead process.
// It returns ErrImageLocked if a live process holds it.
func (l *HostLock) Acquire() error {
	if data, err := afero.ReadFile(l.fs, l.path); err == nil {
		l.logger.Debug("🔍 Lock file exists, checking if it's stale...")

		contents := strings.TrimSpace(string(data))
		if oldPid, err := strconv.Atoi(contents); err == nil {
			if oldPid != l.pid && l.alive(oldPid) {
				l.logger.Debug("🔒 Lock held by active process", "pid", oldPid)
				return fmt.Errorf("pid %d: %w", oldPid, cferrors.ErrImageLocked)
			}
			l.logger.Info("🧹 Removing stale lock from dead process", "pid", oldPid)
		} else {
			l.logger.Info("🧹 Removing invalid lock file (couldn't parse PID)")
		}
		l.fs.Remove(l.path)
	}

	file, err := l.fs.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return cferrors.ErrImageLocked
		}
		return err
	}
	defer file.Close()

	if _, err := fmt.Fprintf(file, "%d\n", l.pid); err != nil {
		l.fs.Remove(l.path)
		return err
	}

	l.logger.Debug("🔒 Acquired image lock", "pid", l.pid)
	return nil
}

// Release removes the lock file.
func (l *HostLock) Release() {
	if err := l.fs.Remove(l.path); err != nil {
		l.logger.Debug("⚠️ Failed to remove lock file", "error", err)
	} else {
		l.logger.Debug("🔓 Released image lock")
	}
}
