// Package lock guards a store directory against concurrent use by several
// processes on the same machine.
//
// The guard is a lock file created with O_EXCL and holding "<pid>@<hostname>".
// A lock left behind by a process that no longer runs on this host is broken
// by the next waiter.
package lock

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.trai.ch/memo/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	// DefaultTimeout bounds how long Acquire waits for the lock.
	DefaultTimeout = 10 * time.Second

	// DefaultGracePeriod is how old an unreadable lock or breaker file must be
	// before it is treated as abandoned.
	DefaultGracePeriod = 30 * time.Second

	breakerSuffix  = ".break"
	initialBackoff = 2 * time.Millisecond
	maxBackoff     = 100 * time.Millisecond
)

// Dir is the lock for one store root. A Dir is safe for concurrent use.
type Dir struct {
	path     string
	timeout  time.Duration
	grace    time.Duration
	owner    string
	hostname string
	alive    func(pid int) bool
	// sem serializes goroutines of this process before the file is contended.
	sem chan struct{}
}

// Option configures a Dir.
type Option func(*Dir)

// WithGracePeriod overrides DefaultGracePeriod.
func WithGracePeriod(d time.Duration) Option {
	return func(l *Dir) {
		l.grace = d
	}
}

// New returns the lock guarding root. A non-positive timeout selects DefaultTimeout.
func New(root string, timeout time.Duration, opts ...Option) *Dir {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	l := &Dir{
		path:     filepath.Join(root, domain.LockFileName),
		timeout:  timeout,
		grace:    DefaultGracePeriod,
		hostname: hostname,
		alive:    processAlive,
		sem:      make(chan struct{}, 1),
	}
	l.owner = ownerString(os.Getpid(), hostname)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the lock file path.
func (l *Dir) Path() string {
	return l.path
}

// Do runs fn while holding the lock.
func (l *Dir) Do(ctx context.Context, fn func() error) error {
	release, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Acquire waits until the lock is held and returns the function releasing it.
// It fails with domain.ErrLockTimeout once the timeout expires and returns the
// context error if ctx is cancelled first.
func (l *Dir) Acquire(ctx context.Context) (func(), error) {
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, l.timeoutError("")
	}

	backoff := initialBackoff
	for {
		created, err := l.tryCreate()
		if err != nil {
			<-l.sem
			return nil, err
		}
		if created {
			var once sync.Once
			return func() {
				once.Do(func() {
					_ = os.Remove(l.path)
					<-l.sem
				})
			}, nil
		}

		if l.breakIfStale() {
			continue
		}

		select {
		case <-ctx.Done():
			<-l.sem
			return nil, ctx.Err()
		case <-timer.C:
			<-l.sem
			return nil, l.timeoutError(l.readOwner())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (l *Dir) tryCreate() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), domain.DirPerm); err != nil {
		return false, l.storeError(err, "failed to create lock directory")
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, domain.PrivateFilePerm)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, l.storeError(err, "failed to create lock file")
	}
	_, werr := f.WriteString(l.owner)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(l.path)
		return false, l.storeError(err, "failed to write lock file")
	}
	return true, nil
}

// breakIfStale removes the lock file when its owner is gone. It reports whether
// the file was removed.
func (l *Dir) breakIfStale() bool {
	content, info, ok := l.inspect()
	if !ok || !l.isStale(content, info) {
		return false
	}

	breaker := l.path + breakerSuffix
	f, err := os.OpenFile(breaker, os.O_CREATE|os.O_EXCL|os.O_WRONLY, domain.PrivateFilePerm)
	if err != nil {
		if bi, statErr := os.Stat(breaker); statErr == nil && time.Since(bi.ModTime()) > l.grace {
			_ = os.Remove(breaker)
		}
		return false
	}
	_ = f.Close()
	defer func() { _ = os.Remove(breaker) }()

	// Another waiter may have broken and re-acquired the lock meanwhile.
	current, currentInfo, ok := l.inspect()
	if !ok || current != content || !l.isStale(current, currentInfo) {
		return false
	}
	return os.Remove(l.path) == nil
}

func (l *Dir) inspect() (string, fs.FileInfo, bool) {
	info, err := os.Stat(l.path)
	if err != nil {
		return "", nil, false
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "", nil, false
	}
	return string(data), info, true
}

func (l *Dir) isStale(content string, info fs.FileInfo) bool {
	pid, host, ok := parseOwner(content)
	if !ok {
		return time.Since(info.ModTime()) > l.grace
	}
	if host != l.hostname {
		return false
	}
	return !l.alive(pid)
}

func (l *Dir) readOwner() string {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return ""
	}
	return string(data)
}

func (l *Dir) timeoutError(owner string) error {
	err := zerr.With(zerr.Wrap(domain.ErrLockTimeout, "lock is held"), "path", l.path)
	err = zerr.With(err, "timeout", l.timeout.String())
	if owner != "" {
		err = zerr.With(err, "owner", owner)
	}
	return err
}

func (l *Dir) storeError(err error, msg string) error {
	return zerr.With(zerr.Wrap(errors.Join(domain.ErrStore, err), msg), "path", l.path)
}

func ownerString(pid int, hostname string) string {
	return strconv.Itoa(pid) + "@" + hostname
}

func parseOwner(content string) (int, string, bool) {
	pidPart, host, found := strings.Cut(strings.TrimSpace(content), "@")
	if !found || host == "" {
		return 0, "", false
	}
	pid, err := strconv.Atoi(pidPart)
	if err != nil || pid <= 0 {
		return 0, "", false
	}
	return pid, host, true
}
