// Package tree maintains the live set of directory watches for each job,
// mirroring the real directory tree when recursive mode is enabled.
package tree

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/direwatch/direwatch/internal/core/interfaces"
	"github.com/direwatch/direwatch/pkg/logger"
	"github.com/direwatch/direwatch/pkg/models"
)

// Manager registers and maintains per-job watch trees against an event
// source. All mutation happens on the dispatcher goroutine, so the manager
// holds no locks of its own.
type Manager struct {
	source interfaces.EventSource
	logger *zap.Logger
}

// Handle is the live watch-tree state for one registered job. The watched set
// is keyed by cleaned absolute directory path; symlink cycles are broken by
// tracking resolved real paths during walks.
type Handle struct {
	job     *models.Job
	watched map[string]bool
	defunct bool
}

// NewManager creates a watch tree manager over the given event source.
func NewManager(source interfaces.EventSource) *Manager {
	return &Manager{
		source: source,
		logger: logger.Get(),
	}
}

// Register subscribes the job's root and, in recursive mode, every descendant
// directory outside the excluded paths. A failure on the root itself is fatal
// for the job; failures deeper in the tree skip that subtree only.
func (m *Manager) Register(job *models.Job) (*Handle, error) {
	h := &Handle{
		job:     job,
		watched: make(map[string]bool),
	}

	if err := m.source.Subscribe(job.RootPath); err != nil {
		return nil, err
	}
	h.watched[job.RootPath] = true
	m.logger.Info("Watching root",
		zap.String("job", job.Name),
		zap.String("path", job.RootPath),
		zap.Bool("recursive", job.Recursive),
	)

	if job.Recursive {
		m.walkAndWatch(h, job.RootPath, map[string]bool{})
	}

	return h, nil
}

// Unregister releases every watch the handle holds.
func (m *Manager) Unregister(h *Handle) {
	for dir := range h.watched {
		m.source.Unsubscribe(dir)
	}
	h.watched = make(map[string]bool)
	h.defunct = true
}

// HandleStructural updates the watch tree for one raw event. It runs before
// any filtering so that directory housekeeping happens even for events the
// job's filter rejects.
func (m *Manager) HandleStructural(h *Handle, ev models.RawEvent) {
	if h.defunct {
		return
	}

	path := ev.Path()

	// The watched directory itself was deleted or moved away.
	if ev.Kinds.Has(models.KindSelfDelete|models.KindSelfMove) && h.watched[path] {
		m.removeSubtree(h, path)
		return
	}

	// An entry disappeared from a watched directory; if it was one of our
	// watched subdirectories, drop its subtree.
	if ev.Kinds.Has(models.KindDelete|models.KindMoveFrom) && h.watched[path] {
		m.removeSubtree(h, path)
		return
	}

	// A directory appeared inside a recursive, autoadd tree. The walk also
	// descends into children that were created before the watch landed.
	if ev.Kinds.Has(models.KindCreate|models.KindMoveTo) && ev.IsDir &&
		h.job.Recursive && h.job.Autoadd {
		m.walkAndWatch(h, path, map[string]bool{})
	}
}

// Resync re-walks the job's tree after the source reported dropped events:
// watches for vanished directories are released and any directory that
// appeared unseen is registered. Only meaningful for recursive jobs.
func (m *Manager) Resync(h *Handle) {
	if h.defunct || !h.job.Recursive {
		return
	}

	// The root's own self_delete may have been swallowed by the gap.
	if info, err := os.Stat(h.job.RootPath); err != nil || !info.IsDir() {
		m.removeSubtree(h, h.job.RootPath)
		return
	}

	for dir := range h.watched {
		if dir == h.job.RootPath {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			m.source.Unsubscribe(dir)
			delete(h.watched, dir)
			m.logger.Info("Watch dropped during resync",
				zap.String("job", h.job.Name),
				zap.String("path", dir),
			)
		}
	}

	m.walkAndWatch(h, h.job.RootPath, map[string]bool{})
}

// walkAndWatch registers dir and all descendant directories depth-first,
// skipping excluded paths, already-watched directories and symlink cycles.
func (m *Manager) walkAndWatch(h *Handle, dir string, visited map[string]bool) {
	dir = filepath.Clean(dir)

	if h.excluded(dir) {
		m.logger.Debug("Skipping excluded directory",
			zap.String("job", h.job.Name),
			zap.String("path", dir),
		)
		return
	}

	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		// Directory vanished between the event and the walk.
		return
	}
	if visited[real] {
		return
	}
	visited[real] = true

	if !h.watched[dir] {
		if err := m.source.Subscribe(dir); err != nil {
			// Skip this subtree only; siblings are unaffected.
			m.logger.Warn("Watch registration failed, skipping subtree",
				zap.String("job", h.job.Name),
				zap.String("path", dir),
				zap.Error(err),
			)
			return
		}
		h.watched[dir] = true
		m.logger.Debug("Watch added",
			zap.String("job", h.job.Name),
			zap.String("path", dir),
		)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		m.logger.Warn("Failed to enumerate directory",
			zap.String("job", h.job.Name),
			zap.String("path", dir),
			zap.Error(err),
		)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			m.walkAndWatch(h, filepath.Join(dir, entry.Name()), visited)
		}
	}
}

// removeSubtree releases the watch on path and on everything below it. When
// the job's own root goes away the handle turns defunct: the job idles and no
// silent re-registration is attempted.
func (m *Manager) removeSubtree(h *Handle, path string) {
	prefix := path + string(filepath.Separator)
	for dir := range h.watched {
		if dir == path || strings.HasPrefix(dir, prefix) {
			m.source.Unsubscribe(dir)
			delete(h.watched, dir)
			m.logger.Info("Watch removed",
				zap.String("job", h.job.Name),
				zap.String("path", dir),
			)
		}
	}

	if path == h.job.RootPath {
		h.defunct = true
		m.logger.Warn("Watch root disappeared, job is now idle",
			zap.String("job", h.job.Name),
			zap.String("path", path),
		)
	}
}

// Job returns the handle's job definition.
func (h *Handle) Job() *models.Job {
	return h.job
}

// Defunct reports whether the job's root vanished.
func (h *Handle) Defunct() bool {
	return h.defunct
}

// Owns reports whether the handle currently watches the given directory.
func (h *Handle) Owns(dir string) bool {
	return !h.defunct && h.watched[filepath.Clean(dir)]
}

// Watched returns the sorted list of currently watched directories.
func (h *Handle) Watched() []string {
	dirs := make([]string, 0, len(h.watched))
	for dir := range h.watched {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// excluded reports whether dir equals or descends from an excluded path.
func (h *Handle) excluded(dir string) bool {
	for _, excl := range h.job.ExcludedPaths {
		if dir == excl || strings.HasPrefix(dir, excl+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
