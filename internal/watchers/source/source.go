// Package source implements the EventSource contract on top of fsnotify.
package source

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/direwatch/direwatch/internal/core/interfaces"
	"github.com/direwatch/direwatch/pkg/errors"
	"github.com/direwatch/direwatch/pkg/logger"
	"github.com/direwatch/direwatch/pkg/models"
)

// DireWatchSource adapts one OS-level fsnotify watcher to the EventSource
// contract. Subscriptions are refcounted per directory: jobs with overlapping
// trees each hold their own subscription while the kernel watch is shared,
// and the watch is only removed when the last subscriber releases it.
//
// Kind mapping from fsnotify operations:
//
//	Create -> create        Write  -> modify
//	Remove -> delete        Rename -> move_from
//	Chmod  -> attribute_change
//
// Remove/Rename of a subscribed directory additionally raise self_delete /
// self_move. fsnotify folds a move into a watched directory into Create, so
// move_to is never emitted; the access/open/write_close/nowrite_close kinds
// have no fsnotify representation either. A mask made only of these kinds
// never fires from this source (config validation warns about it).
type DireWatchSource struct {
	watcher *fsnotify.Watcher
	refs    map[string]int // subscription count per directory
	refsMu  sync.Mutex
	events  chan models.RawEvent
	errs    chan error
	stop    chan struct{}
	wg      sync.WaitGroup
	logger  *zap.Logger
	closed  bool
}

var _ interfaces.EventSource = (*DireWatchSource)(nil)

// NewDireWatchSource creates and starts an fsnotify-backed event source.
func NewDireWatchSource() (*DireWatchSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.NewSourceError("failed to create fsnotify watcher", err)
	}

	s := &DireWatchSource{
		watcher: w,
		refs:    make(map[string]int),
		events:  make(chan models.RawEvent, 256),
		errs:    make(chan error, 16),
		stop:    make(chan struct{}),
		logger:  logger.Get(),
	}

	s.wg.Add(1)
	go s.direWatchMonitor()

	return s, nil
}

// Subscribe registers a watch on an absolute directory path.
func (s *DireWatchSource) Subscribe(path string) error {
	path = filepath.Clean(path)

	s.refsMu.Lock()
	defer s.refsMu.Unlock()

	if s.refs[path] > 0 {
		s.refs[path]++
		return nil
	}

	if err := s.watcher.Add(path); err != nil {
		return errors.NewWatchError(fmt.Sprintf("failed to watch %s", path), err)
	}
	s.refs[path] = 1

	s.logger.Debug("Watch registered", zap.String("path", path))
	return nil
}

// Unsubscribe releases one subscription on the path, removing the OS watch
// when the last subscriber is gone.
func (s *DireWatchSource) Unsubscribe(path string) error {
	path = filepath.Clean(path)

	s.refsMu.Lock()
	defer s.refsMu.Unlock()

	count, ok := s.refs[path]
	if !ok {
		return nil
	}
	if count > 1 {
		s.refs[path] = count - 1
		return nil
	}
	delete(s.refs, path)

	// The kernel drops watches on deleted inodes by itself, so a removal
	// error for a vanished directory is not actionable.
	if err := s.watcher.Remove(path); err != nil && !stderrors.Is(err, fsnotify.ErrNonExistentWatch) {
		s.logger.Debug("Watch removal failed", zap.String("path", path), zap.Error(err))
	}

	s.logger.Debug("Watch removed", zap.String("path", path))
	return nil
}

// Events returns the channel delivering raw notifications.
func (s *DireWatchSource) Events() <-chan models.RawEvent {
	return s.events
}

// Errors returns the channel delivering source errors.
func (s *DireWatchSource) Errors() <-chan error {
	return s.errs
}

// Close stops the source and releases all watches.
func (s *DireWatchSource) Close() error {
	s.refsMu.Lock()
	if s.closed {
		s.refsMu.Unlock()
		return nil
	}
	s.closed = true
	s.refsMu.Unlock()

	close(s.stop)
	err := s.watcher.Close()
	s.wg.Wait()

	close(s.events)
	close(s.errs)

	return err
}

// direWatchMonitor is the translation goroutine between fsnotify and the
// RawEvent stream.
func (s *DireWatchSource) direWatchMonitor() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			raw, ok := s.direWatchTranslate(ev)
			if !ok {
				continue
			}
			select {
			case s.events <- raw:
			case <-s.stop:
				return
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if stderrors.Is(err, fsnotify.ErrEventOverflow) {
				err = errors.NewSourceError("kernel event queue overflowed, events were dropped", err)
			}
			select {
			case s.errs <- err:
			case <-s.stop:
				return
			}
		}
	}
}

// direWatchTranslate maps one fsnotify event onto the RawEvent model.
func (s *DireWatchSource) direWatchTranslate(ev fsnotify.Event) (models.RawEvent, bool) {
	path := filepath.Clean(ev.Name)

	s.refsMu.Lock()
	self := s.refs[path] > 0
	s.refsMu.Unlock()

	var kinds models.EventKind
	if ev.Op&fsnotify.Create != 0 {
		kinds |= models.KindCreate
	}
	if ev.Op&fsnotify.Write != 0 {
		kinds |= models.KindModify
	}
	if ev.Op&fsnotify.Remove != 0 {
		kinds |= models.KindDelete
		if self {
			kinds |= models.KindSelfDelete
		}
	}
	if ev.Op&fsnotify.Rename != 0 {
		kinds |= models.KindMoveFrom
		if self {
			kinds |= models.KindSelfMove
		}
	}
	if ev.Op&fsnotify.Chmod != 0 {
		kinds |= models.KindAttrib
	}
	if kinds == 0 {
		return models.RawEvent{}, false
	}

	raw := models.RawEvent{Kinds: kinds}

	if self && kinds.Has(models.KindSelfDelete|models.KindSelfMove) {
		// The watched directory itself changed.
		raw.WatchPath = path
		raw.IsDir = true
		return raw, true
	}

	raw.WatchPath = filepath.Dir(path)
	raw.Name = filepath.Base(path)
	raw.IsDir = self

	if kinds.Has(models.KindCreate | models.KindModify | models.KindAttrib) {
		if info, err := os.Stat(path); err == nil {
			raw.IsDir = info.IsDir()
		}
	}

	return raw, true
}
