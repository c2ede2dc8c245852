package tree

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/direwatch/direwatch/pkg/models"
)

// fakeSource records subscription traffic without any OS watches behind it.
type fakeSource struct {
	subscribed map[string]int
	failPaths  map[string]error
	events     chan models.RawEvent
	errs       chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		subscribed: make(map[string]int),
		failPaths:  make(map[string]error),
		events:     make(chan models.RawEvent),
		errs:       make(chan error),
	}
}

func (f *fakeSource) Subscribe(path string) error {
	if err := f.failPaths[path]; err != nil {
		return err
	}
	f.subscribed[path]++
	return nil
}

func (f *fakeSource) Unsubscribe(path string) error {
	f.subscribed[path]--
	return nil
}

func (f *fakeSource) Events() <-chan models.RawEvent { return f.events }
func (f *fakeSource) Errors() <-chan error           { return f.errs }
func (f *fakeSource) Close() error                   { return nil }

func testJob(root string) *models.Job {
	return &models.Job{
		Name:            "test",
		RootPath:        root,
		EventMask:       models.KindCreate,
		Recursive:       true,
		Autoadd:         true,
		CommandTemplate: "true",
	}
}

func mkdirs(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		require.NoError(t, os.MkdirAll(filepath.Join(root, rel), 0755))
	}
}

func TestRegisterWalksTree(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a/b", "c")

	src := newFakeSource()
	m := NewManager(src)

	h, err := m.Register(testJob(root))
	require.NoError(t, err)

	assert.Equal(t, []string{
		root,
		filepath.Join(root, "a"),
		filepath.Join(root, "a/b"),
		filepath.Join(root, "c"),
	}, h.Watched())
	assert.True(t, h.Owns(filepath.Join(root, "a/b")))
	assert.False(t, h.Owns(filepath.Join(root, "nope")))
}

func TestRegisterNonRecursive(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a")

	src := newFakeSource()
	m := NewManager(src)

	job := testJob(root)
	job.Recursive = false
	h, err := m.Register(job)
	require.NoError(t, err)

	assert.Equal(t, []string{root}, h.Watched())
}

func TestRegisterRootFailureIsFatal(t *testing.T) {
	root := t.TempDir()

	src := newFakeSource()
	src.failPaths[root] = os.ErrPermission
	m := NewManager(src)

	_, err := m.Register(testJob(root))
	require.Error(t, err)
}

func TestRegisterSubtreeFailureSkipsSubtreeOnly(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "bad/deep", "good")

	src := newFakeSource()
	src.failPaths[filepath.Join(root, "bad")] = os.ErrPermission
	m := NewManager(src)

	h, err := m.Register(testJob(root))
	require.NoError(t, err)

	assert.Equal(t, []string{root, filepath.Join(root, "good")}, h.Watched())
}

func TestRegisterHonorsExcludedPaths(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "keep", "skip/inner")

	src := newFakeSource()
	m := NewManager(src)

	job := testJob(root)
	job.ExcludedPaths = []string{filepath.Join(root, "skip")}
	h, err := m.Register(job)
	require.NoError(t, err)

	assert.Equal(t, []string{root, filepath.Join(root, "keep")}, h.Watched())
}

func TestStructuralCreateAddsSubtree(t *testing.T) {
	root := t.TempDir()

	src := newFakeSource()
	m := NewManager(src)

	h, err := m.Register(testJob(root))
	require.NoError(t, err)
	assert.Equal(t, []string{root}, h.Watched())

	// Directory created after registration, with a child that raced in
	// before the watch landed.
	mkdirs(t, root, "new/nested")
	m.HandleStructural(h, models.RawEvent{
		WatchPath: root,
		Name:      "new",
		Kinds:     models.KindCreate,
		IsDir:     true,
	})

	assert.Equal(t, []string{
		root,
		filepath.Join(root, "new"),
		filepath.Join(root, "new/nested"),
	}, h.Watched())
}

func TestStructuralCreateOfExcludedPathStaysUnwatched(t *testing.T) {
	root := t.TempDir()

	src := newFakeSource()
	m := NewManager(src)

	job := testJob(root)
	job.ExcludedPaths = []string{filepath.Join(root, "tmp")}
	h, err := m.Register(job)
	require.NoError(t, err)

	// Excluded directory recreated after registration never gains a watch.
	mkdirs(t, root, "tmp/inner")
	m.HandleStructural(h, models.RawEvent{
		WatchPath: root,
		Name:      "tmp",
		Kinds:     models.KindCreate,
		IsDir:     true,
	})

	assert.Equal(t, []string{root}, h.Watched())
	assert.Equal(t, 0, src.subscribed[filepath.Join(root, "tmp")])
}

func TestStructuralCreateIgnoredWithoutAutoadd(t *testing.T) {
	root := t.TempDir()

	src := newFakeSource()
	m := NewManager(src)

	job := testJob(root)
	job.Autoadd = false
	h, err := m.Register(job)
	require.NoError(t, err)

	mkdirs(t, root, "new")
	m.HandleStructural(h, models.RawEvent{
		WatchPath: root,
		Name:      "new",
		Kinds:     models.KindCreate,
		IsDir:     true,
	})

	assert.Equal(t, []string{root}, h.Watched())
}

func TestStructuralDeleteRemovesSubtree(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a/b", "c")

	src := newFakeSource()
	m := NewManager(src)

	h, err := m.Register(testJob(root))
	require.NoError(t, err)

	m.HandleStructural(h, models.RawEvent{
		WatchPath: root,
		Name:      "a",
		Kinds:     models.KindDelete,
	})

	assert.Equal(t, []string{root, filepath.Join(root, "c")}, h.Watched())
	assert.Equal(t, 0, src.subscribed[filepath.Join(root, "a")])
	assert.Equal(t, 0, src.subscribed[filepath.Join(root, "a/b")])
	assert.False(t, h.Defunct())
}

func TestStructuralMoveFromRemovesSubtree(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "gone")

	src := newFakeSource()
	m := NewManager(src)

	h, err := m.Register(testJob(root))
	require.NoError(t, err)

	m.HandleStructural(h, models.RawEvent{
		WatchPath: root,
		Name:      "gone",
		Kinds:     models.KindMoveFrom,
		Cookie:    42,
	})

	assert.Equal(t, []string{root}, h.Watched())
}

func TestStructuralRootDeleteMakesHandleDefunct(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a")

	src := newFakeSource()
	m := NewManager(src)

	h, err := m.Register(testJob(root))
	require.NoError(t, err)

	m.HandleStructural(h, models.RawEvent{
		WatchPath: root,
		Kinds:     models.KindSelfDelete,
		IsDir:     true,
	})

	assert.True(t, h.Defunct())
	assert.Empty(t, h.Watched())
	assert.False(t, h.Owns(root))

	// A defunct handle stays idle even if a matching directory reappears.
	m.HandleStructural(h, models.RawEvent{
		WatchPath: root,
		Name:      "again",
		Kinds:     models.KindCreate,
		IsDir:     true,
	})
	assert.Empty(t, h.Watched())
}

func TestStructuralFileEventsLeaveTreeAlone(t *testing.T) {
	root := t.TempDir()

	src := newFakeSource()
	m := NewManager(src)

	h, err := m.Register(testJob(root))
	require.NoError(t, err)

	m.HandleStructural(h, models.RawEvent{
		WatchPath: root,
		Name:      "file.txt",
		Kinds:     models.KindCreate,
		IsDir:     false,
	})
	m.HandleStructural(h, models.RawEvent{
		WatchPath: root,
		Name:      "file.txt",
		Kinds:     models.KindDelete,
	})

	assert.Equal(t, []string{root}, h.Watched())
}

func TestResync(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "stays", "vanishes")

	src := newFakeSource()
	m := NewManager(src)

	h, err := m.Register(testJob(root))
	require.NoError(t, err)

	// Simulate a missed delete and a missed create.
	require.NoError(t, os.Remove(filepath.Join(root, "vanishes")))
	mkdirs(t, root, "appeared")

	m.Resync(h)

	assert.Equal(t, []string{
		root,
		filepath.Join(root, "appeared"),
		filepath.Join(root, "stays"),
	}, h.Watched())
	assert.Equal(t, 0, src.subscribed[filepath.Join(root, "vanishes")])
}

func TestResyncVanishedRootMakesHandleDefunct(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "root")
	require.NoError(t, os.Mkdir(root, 0755))

	src := newFakeSource()
	m := NewManager(src)

	mkdirs(t, root, "a")
	h, err := m.Register(testJob(root))
	require.NoError(t, err)

	// Root deleted during an overflow gap; its self_delete never arrived.
	require.NoError(t, os.RemoveAll(root))
	m.Resync(h)

	assert.True(t, h.Defunct())
	assert.Empty(t, h.Watched())
	assert.Equal(t, 0, src.subscribed[root])
	assert.Equal(t, 0, src.subscribed[filepath.Join(root, "a")])
}

func TestUnregister(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "a")

	src := newFakeSource()
	m := NewManager(src)

	h, err := m.Register(testJob(root))
	require.NoError(t, err)

	m.Unregister(h)

	assert.Empty(t, h.Watched())
	assert.Equal(t, 0, src.subscribed[root])
	assert.Equal(t, 0, src.subscribed[filepath.Join(root, "a")])
	assert.True(t, h.Defunct())
}
