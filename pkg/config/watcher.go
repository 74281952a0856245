package config

import (
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Watcher holds the active credentials and replaces them when the file on
// disk becomes newer, unless the new contents would lose a usable group.
type Watcher struct {
	path    string
	logger  *zap.SugaredLogger
	current atomic.Pointer[Credentials]

	// serialises Check; Current never takes it
	checkMu sync.Mutex
	rejects atomic.Uint64
}

// NewWatcher loads the initial snapshot. A missing or unreadable file is not
// fatal: every group starts unusable and a later Check picks the file up.
func NewWatcher(path string, logger *zap.SugaredLogger) *Watcher {
	w := &Watcher{
		path:   path,
		logger: logger,
	}

	creds, err := LoadCredentials(path)
	if err != nil {
		logger.Warnw("credentials not loaded", "path", path, "error", err)
	}
	w.current.Store(creds)
	w.logGroups(creds)

	return w
}

// Current returns the active snapshot
func (w *Watcher) Current() *Credentials {
	return w.current.Load()
}

// Rejected returns how many newer files were refused because they regressed a group
func (w *Watcher) Rejected() uint64 {
	return w.rejects.Load()
}

// Check replaces the active snapshot if the file has been modified since it
// was loaded and the new contents are no worse. It reports whether a swap happened.
func (w *Watcher) Check() bool {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}

	cur := w.current.Load()
	if !info.ModTime().After(cur.ModTime) {
		return false
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Debugw("unable to read credentials", "path", w.path, "error", err)
		return false
	}

	candidate, err := ParseCredentials(data, info.ModTime())
	candidate.Source = w.path
	if err != nil {
		w.logger.Warnw("credentials parse failed", "path", w.path, "error", err)
	}

	if lost := candidate.Regressions(cur); len(lost) > 0 {
		w.rejects.Add(1)
		w.logger.Warnw("ignoring credentials update that loses usable groups",
			"path", w.path, "groups", lost)
		// remember the rejected mtime so the same file is not parsed every tick
		kept := *cur
		kept.ModTime = info.ModTime()
		w.current.Store(&kept)
		return false
	}

	w.current.Store(candidate)
	w.logger.Infow("credentials reloaded", "path", w.path)
	w.logGroups(candidate)
	return true
}

func (w *Watcher) logGroups(c *Credentials) {
	for _, g := range []struct {
		name string
		grp  Group
	}{
		{GroupMySQL, c.MySQL.Group},
		{GroupCloud, c.Cloud.Group},
		{GroupTwitter, c.Twitter.Group},
	} {
		if g.grp.Usable {
			w.logger.Infof("%s configured OK", g.name)
		} else {
			w.logger.Warnw("invalid or missing credentials", "group", g.name, "fields", g.grp.Missing)
		}
	}
}
