package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const shellPrefix = "shell-"

// ShellID names the file session owned by the shell with the given pid.
func ShellID(pid int) string {
	return shellPrefix + strconv.Itoa(pid)
}

func shellPID(sessionID string) (int, bool) {
	rest, ok := strings.CutPrefix(sessionID, shellPrefix)
	if !ok {
		return 0, false
	}
	pid, err := strconv.Atoi(rest)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// PruneOptions selects which file sessions PruneFileSessions removes.
// A zero TTL disables the age check; a nil Alive disables the pid check.
type PruneOptions struct {
	TTL   time.Duration
	Now   func() time.Time
	Alive func(pid int) bool
}

// PruneFileSessions removes session directories under root whose last write
// is older than TTL, and shell sessions whose pid no longer runs. It returns
// the removed session ids in directory order.
func PruneFileSessions(root string, opts PruneOptions) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	var pruned []string
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() || !safeKey.MatchString(entry.Name()) {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if !expired(dir, entry.Name(), now(), opts) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, fmt.Errorf("session: prune %s: %w", entry.Name(), err))
			continue
		}
		pruned = append(pruned, entry.Name())
	}
	return pruned, errors.Join(errs...)
}

func expired(dir, sessionID string, now time.Time, opts PruneOptions) bool {
	if pid, ok := shellPID(sessionID); ok && opts.Alive != nil && !opts.Alive(pid) {
		return true
	}
	if opts.TTL <= 0 {
		return false
	}
	last, err := lastWrite(dir)
	if err != nil {
		return false
	}
	return now.Sub(last) > opts.TTL
}

// lastWrite is the newest modification time of the slot files in dir, or the
// directory's own time when it holds none.
func lastWrite(dir string) (time.Time, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return time.Time{}, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, err
	}
	var newest time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if fi.ModTime().After(newest) {
			newest = fi.ModTime()
		}
	}
	if newest.IsZero() {
		return info.ModTime(), nil
	}
	return newest, nil
}
