// Package safefs wraps directory listing and stat calls with bounded
// retries and mount-health throttling, for filesystems (SMB/NFS) that
// intermittently refuse operations without being broken.
package safefs

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sydlexius/mediarr/internal/throttle"
)

// Directory entries matching these names never indicate real content and
// are known to trip enumeration errors on NAS mounts.
var spuriousNames = map[string]bool{
	"@eadir":      true,
	"#recycle":    true,
	"thumbs.db":   true,
	"desktop.ini": true,
}

// spuriousPrefixes covers hidden sentinels and SMB transient delete markers.
var spuriousPrefixes = []string{".", "~$", ".smbdelete"}

// Lister is the directory access surface consumed by the scan engine.
// It exists so tests can count listings without a real filesystem.
type Lister interface {
	ListDirectory(ctx context.Context, root, path string) ([]fs.DirEntry, error)
	StatFile(ctx context.Context, root, path string) (fs.FileInfo, error)
}

// Accessor implements Lister against the OS filesystem.
type Accessor struct {
	throttle   *throttle.Controller
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewAccessor creates an accessor. maxRetries bounds attempts per call;
// zero or negative selects the default of 8.
func NewAccessor(tc *throttle.Controller, maxRetries int, logger *slog.Logger) *Accessor {
	if maxRetries <= 0 {
		maxRetries = 8
	}
	return &Accessor{
		throttle:   tc,
		maxRetries: maxRetries,
		baseDelay:  50 * time.Millisecond,
		logger:     logger.With(slog.String("component", "safefs")),
	}
}

// ListDirectory lists the children of path, in lexicographic name order,
// with spurious entries filtered out. root keys the throttle state.
func (a *Accessor) ListDirectory(ctx context.Context, root, path string) ([]fs.DirEntry, error) {
	var entries []fs.DirEntry
	err := a.attempt(ctx, root, "list", path, func() error {
		var err error
		entries, err = os.ReadDir(path)
		return err
	})
	if err != nil {
		return nil, err
	}

	filtered := entries[:0]
	for _, e := range entries {
		if IsSpurious(e.Name()) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered, nil
}

// StatFile stats path with the same retry and throttle treatment.
func (a *Accessor) StatFile(ctx context.Context, root, path string) (fs.FileInfo, error) {
	var info fs.FileInfo
	err := a.attempt(ctx, root, "stat", path, func() error {
		var err error
		info, err = os.Stat(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// ReadFile reads path with the same retry and throttle treatment. Used
// for serving artwork files, where a blocked SMB read should retry
// rather than fail the request.
func (a *Accessor) ReadFile(ctx context.Context, root, path string) ([]byte, error) {
	var data []byte
	err := a.attempt(ctx, root, "read", path, func() error {
		var err error
		data, err = os.ReadFile(path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// attempt runs op with throttle consultation and bounded exponential
// retry. Permanent failures abort immediately; transient failures are
// retried until the attempt budget is spent.
func (a *Accessor) attempt(ctx context.Context, root, opName, path string, op func() error) error {
	backoff := retry.WithMaxRetries(uint64(a.maxRetries-1), retry.NewExponential(a.baseDelay))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := a.throttle.BeforeOperation(ctx, root); err != nil {
			return err
		}

		opErr := op()
		if opErr == nil {
			a.throttle.RecordSuccess(root)
			return nil
		}

		kind := Classify(underlying(opErr))
		a.throttle.RecordFailure(root, kind)

		wrapped := &Error{Op: opName, Path: path, Kind: kind, Err: underlying(opErr)}
		if kind == throttle.Transient {
			a.logger.Debug("transient filesystem error, will retry",
				"op", opName, "path", path, "error", opErr)
			return retry.RetryableError(wrapped)
		}
		return wrapped
	})
}

// IsSpurious reports whether a directory entry name is a known junk or
// sentinel name that should be invisible to scans.
func IsSpurious(name string) bool {
	lower := strings.ToLower(name)
	if spuriousNames[lower] {
		return true
	}
	for _, p := range spuriousPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}
