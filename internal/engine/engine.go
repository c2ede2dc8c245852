// Package engine binds the event source, watch trees, filter and executor
// into the dispatch control loop.
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/direwatch/direwatch/internal/core/interfaces"
	"github.com/direwatch/direwatch/internal/executor"
	"github.com/direwatch/direwatch/internal/watchers/filter"
	"github.com/direwatch/direwatch/internal/watchers/tree"
	"github.com/direwatch/direwatch/pkg/errors"
	"github.com/direwatch/direwatch/pkg/logger"
	"github.com/direwatch/direwatch/pkg/models"
)

// DireWatchEngine is the dispatcher: a single control loop consuming raw
// events, resolving them to jobs through the watch trees, filtering, and
// handing matches to the executor. Watch-tree mutation happens only on this
// loop's goroutine, so the trees need no locking.
type DireWatchEngine struct {
	source  interfaces.EventSource
	trees   *tree.Manager
	exec    *executor.Executor
	jobs    []*models.Job
	handles []*tree.Handle

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *zap.Logger
	isRunning bool
	runningMu sync.RWMutex
}

// NewDireWatchEngine creates an engine over the given collaborators. The
// executor's recorder, the source implementation and the job set all come
// from the caller so tests can substitute fakes.
func NewDireWatchEngine(source interfaces.EventSource, exec *executor.Executor, jobs []*models.Job) *DireWatchEngine {
	ctx, cancel := context.WithCancel(context.Background())

	return &DireWatchEngine{
		source: source,
		trees:  tree.NewManager(source),
		exec:   exec,
		jobs:   jobs,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Get(),
	}
}

// Start registers every job's watch tree and launches the dispatch loop.
// A job whose root cannot be watched is skipped with an error log; the
// engine fails only when no job could be registered at all.
func (e *DireWatchEngine) Start() error {
	e.runningMu.Lock()
	defer e.runningMu.Unlock()

	if e.isRunning {
		return fmt.Errorf("engine is already running")
	}

	for _, job := range e.jobs {
		handle, err := e.trees.Register(job)
		if err != nil {
			e.logger.Error("Failed to register job, skipping it",
				zap.String("job", job.Name),
				zap.String("path", job.RootPath),
				zap.Error(err),
			)
			continue
		}
		e.handles = append(e.handles, handle)
	}

	if len(e.handles) == 0 {
		return errors.NewWatchError("no job could be registered", nil)
	}

	e.wg.Add(1)
	go e.direWatchDispatch()

	e.isRunning = true
	e.logger.Info("Dispatch engine started",
		zap.Int("jobs", len(e.handles)),
	)

	return nil
}

// Stop shuts the engine down cooperatively: the loop stops pulling new
// events, then every in-flight and queued execution is waited for without
// any timeout, then the watches are released.
func (e *DireWatchEngine) Stop() error {
	e.runningMu.Lock()
	defer e.runningMu.Unlock()

	if !e.isRunning {
		return nil
	}

	e.cancel()
	e.wg.Wait()

	e.exec.Wait()

	for _, handle := range e.handles {
		e.trees.Unregister(handle)
	}
	err := e.source.Close()

	e.isRunning = false
	e.logger.Info("Dispatch engine stopped")

	return err
}

// IsRunning reports whether the dispatch loop is live.
func (e *DireWatchEngine) IsRunning() bool {
	e.runningMu.RLock()
	defer e.runningMu.RUnlock()
	return e.isRunning
}

// Handles exposes the registered watch trees for status reporting.
func (e *DireWatchEngine) Handles() []*tree.Handle {
	return e.handles
}

// direWatchDispatch is the single event-consuming control loop.
func (e *DireWatchEngine) direWatchDispatch() {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return

		case ev, ok := <-e.source.Events():
			if !ok {
				return
			}
			e.direWatchRoute(ev)

		case err, ok := <-e.source.Errors():
			if !ok {
				return
			}
			e.direWatchSourceError(err)
		}
	}
}

// direWatchRoute resolves one raw event against every job tree containing
// its watch path. Structural events reach the tree manager before any
// filtering, so directory housekeeping happens even for events a job's
// filter rejects.
func (e *DireWatchEngine) direWatchRoute(ev models.RawEvent) {
	for _, handle := range e.handles {
		if !handle.Owns(ev.WatchPath) {
			continue
		}
		job := handle.Job()

		if ev.IsStructural() {
			e.trees.HandleStructural(handle, ev)
		}

		if !filter.Matches(job, ev) {
			e.logger.Debug("Filter rejected event",
				zap.String("job", job.Name),
				zap.String("path", ev.Path()),
				zap.String("kinds", ev.Kinds.String()),
			)
			continue
		}

		e.exec.Dispatch(job, models.NewExecutionContext(job, ev))
	}
}

// direWatchSourceError handles an event source error. An overflow means a
// silent gap in monitoring coverage: the watch-tree invariant may be broken
// for any recursive job, so every recursive tree is re-walked.
func (e *DireWatchEngine) direWatchSourceError(err error) {
	if errors.IsSourceError(err) {
		e.logger.Error("Event source dropped events, monitoring coverage gap; resynchronizing watch trees",
			zap.Error(err),
		)
		for _, handle := range e.handles {
			e.trees.Resync(handle)
		}
		return
	}

	e.logger.Error("Event source error", zap.Error(err))
}
