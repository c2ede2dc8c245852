package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/direwatch/direwatch/internal/executor"
	"github.com/direwatch/direwatch/pkg/errors"
	"github.com/direwatch/direwatch/pkg/models"
)

// scriptedSource is an in-memory event source the tests feed by hand.
type scriptedSource struct {
	mu         sync.Mutex
	subscribed map[string]int
	failPaths  map[string]error
	events     chan models.RawEvent
	errs       chan error
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		subscribed: make(map[string]int),
		failPaths:  make(map[string]error),
		events:     make(chan models.RawEvent, 64),
		errs:       make(chan error, 8),
	}
}

func (s *scriptedSource) Subscribe(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failPaths[path]; err != nil {
		return err
	}
	s.subscribed[path]++
	return nil
}

func (s *scriptedSource) Unsubscribe(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribed[path]--
	return nil
}

func (s *scriptedSource) refs(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed[path]
}

func (s *scriptedSource) Events() <-chan models.RawEvent { return s.events }
func (s *scriptedSource) Errors() <-chan error           { return s.errs }
func (s *scriptedSource) Close() error                   { return nil }

func appendJob(name, root, out string) *models.Job {
	return &models.Job{
		Name:            name,
		RootPath:        root,
		EventMask:       models.KindWriteClose | models.KindMoveTo | models.KindCreate,
		Recursive:       true,
		Autoadd:         true,
		LogOutput:       true,
		CommandTemplate: fmt.Sprintf("printf '%%s\\n' $filename >> %s", out),
	}
}

func waitForLine(t *testing.T, path, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && contains(splitLines(data), want)
	}, 5*time.Second, 10*time.Millisecond, "expected %q to appear in %s", want, path)
}

func splitLines(data []byte) []string {
	var out []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			out = append(out, string(data[start:i]))
			start = i + 1
		}
	}
	return out
}

func contains(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

func TestEngineDispatchesMatchingEvents(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "runs.txt")

	src := newScriptedSource()
	eng := NewDireWatchEngine(src, executor.New(nil), []*models.Job{appendJob("videos", root, out)})

	require.NoError(t, eng.Start())
	assert.True(t, eng.IsRunning())
	assert.Equal(t, 1, src.refs(root))

	src.events <- models.RawEvent{
		WatchPath: root,
		Name:      "ep1.mp4",
		Kinds:     models.KindWriteClose,
	}
	waitForLine(t, out, "ep1.mp4")

	require.NoError(t, eng.Stop())
	assert.False(t, eng.IsRunning())
	assert.Equal(t, 0, src.refs(root))
}

func TestEngineFiltersNonMatchingEvents(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "runs.txt")

	src := newScriptedSource()
	job := appendJob("videos", root, out)
	job.EventMask = models.KindWriteClose
	job.IncludeExtensions = []string{".mp4"}
	eng := NewDireWatchEngine(src, executor.New(nil), []*models.Job{job})
	require.NoError(t, eng.Start())

	// Wrong kind, then wrong extension, then a sentinel match.
	src.events <- models.RawEvent{WatchPath: root, Name: "ep.mp4", Kinds: models.KindOpen}
	src.events <- models.RawEvent{WatchPath: root, Name: "ep.srt", Kinds: models.KindWriteClose}
	src.events <- models.RawEvent{WatchPath: root, Name: "sentinel.mp4", Kinds: models.KindWriteClose}
	waitForLine(t, out, "sentinel.mp4")
	require.NoError(t, eng.Stop())

	lines := splitLines(mustRead(t, out))
	assert.Equal(t, []string{"sentinel.mp4"}, lines)
}

func TestEngineIgnoresForeignPaths(t *testing.T) {
	root := t.TempDir()
	other := t.TempDir()
	out := filepath.Join(t.TempDir(), "runs.txt")

	src := newScriptedSource()
	eng := NewDireWatchEngine(src, executor.New(nil), []*models.Job{appendJob("videos", root, out)})
	require.NoError(t, eng.Start())

	src.events <- models.RawEvent{WatchPath: other, Name: "stray.mp4", Kinds: models.KindWriteClose}
	src.events <- models.RawEvent{WatchPath: root, Name: "sentinel.mp4", Kinds: models.KindWriteClose}
	waitForLine(t, out, "sentinel.mp4")
	require.NoError(t, eng.Stop())

	lines := splitLines(mustRead(t, out))
	assert.Equal(t, []string{"sentinel.mp4"}, lines)
}

func TestEngineOverlappingRootsBothDispatch(t *testing.T) {
	root := t.TempDir()
	outA := filepath.Join(t.TempDir(), "a.txt")
	outB := filepath.Join(t.TempDir(), "b.txt")

	src := newScriptedSource()
	jobs := []*models.Job{
		appendJob("alpha", root, outA),
		appendJob("beta", root, outB),
	}
	eng := NewDireWatchEngine(src, executor.New(nil), jobs)
	require.NoError(t, eng.Start())

	// Two jobs on the same root hold independent subscriptions.
	assert.Equal(t, 2, src.refs(root))

	src.events <- models.RawEvent{WatchPath: root, Name: "shared.mp4", Kinds: models.KindWriteClose}
	waitForLine(t, outA, "shared.mp4")
	waitForLine(t, outB, "shared.mp4")
	require.NoError(t, eng.Stop())

	assert.Equal(t, 0, src.refs(root))
}

func TestEngineAutoaddExtendsTree(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "runs.txt")

	src := newScriptedSource()
	eng := NewDireWatchEngine(src, executor.New(nil), []*models.Job{appendJob("videos", root, out)})
	require.NoError(t, eng.Start())

	sub := filepath.Join(root, "season1")
	require.NoError(t, os.Mkdir(sub, 0755))
	src.events <- models.RawEvent{WatchPath: root, Name: "season1", Kinds: models.KindCreate, IsDir: true}
	waitForLine(t, out, "season1")

	// Events inside the grown tree are now owned by the job.
	src.events <- models.RawEvent{WatchPath: sub, Name: "ep1.mp4", Kinds: models.KindWriteClose}
	waitForLine(t, out, "ep1.mp4")

	require.NoError(t, eng.Stop())
}

func TestEngineSkipsUnregisterableJob(t *testing.T) {
	good := t.TempDir()
	bad := t.TempDir()
	out := filepath.Join(t.TempDir(), "runs.txt")

	src := newScriptedSource()
	src.failPaths[bad] = os.ErrPermission
	jobs := []*models.Job{
		appendJob("good", good, out),
		appendJob("bad", bad, out),
	}
	eng := NewDireWatchEngine(src, executor.New(nil), jobs)
	require.NoError(t, eng.Start())
	defer eng.Stop()

	require.Len(t, eng.Handles(), 1)
	assert.Equal(t, "good", eng.Handles()[0].Job().Name)
}

func TestEngineFailsWhenNoJobRegisters(t *testing.T) {
	bad := t.TempDir()

	src := newScriptedSource()
	src.failPaths[bad] = os.ErrPermission
	eng := NewDireWatchEngine(src, executor.New(nil), []*models.Job{appendJob("bad", bad, "/dev/null")})

	err := eng.Start()
	require.Error(t, err)
	assert.True(t, errors.IsWatchError(err))
	assert.False(t, eng.IsRunning())
}

func TestEngineResyncsAfterOverflow(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "runs.txt")

	src := newScriptedSource()
	eng := NewDireWatchEngine(src, executor.New(nil), []*models.Job{appendJob("videos", root, out)})
	require.NoError(t, eng.Start())

	// Directory created during the coverage gap: no create event arrives.
	missed := filepath.Join(root, "missed")
	require.NoError(t, os.Mkdir(missed, 0755))
	src.errs <- errors.NewSourceError("event queue overflowed", nil)

	require.Eventually(t, func() bool {
		return src.refs(missed) == 1
	}, 5*time.Second, 10*time.Millisecond)

	src.events <- models.RawEvent{WatchPath: missed, Name: "ep1.mp4", Kinds: models.KindWriteClose}
	waitForLine(t, out, "ep1.mp4")

	require.NoError(t, eng.Stop())
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
