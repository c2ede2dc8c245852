package filter

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/direwatch/direwatch/pkg/models"
)

func videoJob() *models.Job {
	return &models.Job{
		Name:              "videos",
		RootPath:          "/media",
		EventMask:         models.KindCreate,
		ExcludeExtensions: []string{".mkv"},
		Recursive:         true,
	}
}

func TestMatchesEventMask(t *testing.T) {
	job := videoJob()

	assert.True(t, Matches(job, models.RawEvent{
		WatchPath: "/media/show", Name: "ep1.mp4", Kinds: models.KindCreate,
	}))
	assert.False(t, Matches(job, models.RawEvent{
		WatchPath: "/media/show", Name: "ep1.mp4", Kinds: models.KindModify,
	}))
	// Any intersection with the mask is enough
	assert.True(t, Matches(job, models.RawEvent{
		WatchPath: "/media/show", Name: "ep1.mp4", Kinds: models.KindCreate | models.KindModify,
	}))
}

func TestMatchesExcludedPaths(t *testing.T) {
	job := videoJob()
	job.ExcludedPaths = []string{"/media/tmp"}

	assert.False(t, Matches(job, models.RawEvent{
		WatchPath: "/media/tmp", Name: "ep1.mp4", Kinds: models.KindCreate,
	}))
	assert.False(t, Matches(job, models.RawEvent{
		WatchPath: "/media/tmp/deep", Name: "ep1.mp4", Kinds: models.KindCreate,
	}))
	// Sibling with the excluded path as a name prefix is not excluded
	assert.True(t, Matches(job, models.RawEvent{
		WatchPath: "/media/tmpfiles", Name: "ep1.mp4", Kinds: models.KindCreate,
	}))
}

func TestMatchesExtensionFilters(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		file    string
		want    bool
	}{
		{name: "exclude hit", exclude: []string{".mkv"}, file: "ep1.mkv", want: false},
		{name: "exclude miss", exclude: []string{".mkv"}, file: "ep1.mp4", want: true},
		{name: "include hit", include: []string{".mp4"}, file: "ep1.mp4", want: true},
		{name: "include miss", include: []string{".mp4"}, file: "ep1.avi", want: false},
		{name: "include and exclude both apply", include: []string{".mp4", ".mkv"}, exclude: []string{".mkv"}, file: "ep1.mkv", want: false},
		{name: "case insensitive", exclude: []string{".mkv"}, file: "EP1.MKV", want: false},
		{name: "no filters", file: "anything.xyz", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := videoJob()
			job.IncludeExtensions = tt.include
			job.ExcludeExtensions = tt.exclude

			got := Matches(job, models.RawEvent{
				WatchPath: "/media/show", Name: tt.file, Kinds: models.KindCreate,
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchesNamePattern(t *testing.T) {
	job := videoJob()
	job.ExcludeExtensions = nil
	job.ExcludeNamePattern = regexp.MustCompile(`^\.`)

	assert.False(t, Matches(job, models.RawEvent{
		WatchPath: "/media/show", Name: ".hidden.mp4", Kinds: models.KindCreate,
	}))
	assert.True(t, Matches(job, models.RawEvent{
		WatchPath: "/media/show", Name: "ep1.mp4", Kinds: models.KindCreate,
	}))

	// Search semantics: the pattern matches anywhere in the name
	job.ExcludeNamePattern = regexp.MustCompile(`sample`)
	assert.False(t, Matches(job, models.RawEvent{
		WatchPath: "/media/show", Name: "ep1.sample.mp4", Kinds: models.KindCreate,
	}))
}

func TestMatchesDirectoryBypassesNameChecks(t *testing.T) {
	// Directories have no extension semantics; only the mask and path
	// exclusion apply to them.
	job := videoJob()
	job.IncludeExtensions = []string{".mp4"}
	job.ExcludeNamePattern = regexp.MustCompile(`^new`)

	assert.True(t, Matches(job, models.RawEvent{
		WatchPath: "/media", Name: "newseason", Kinds: models.KindCreate, IsDir: true,
	}))
}

func TestMatchesIsPure(t *testing.T) {
	job := videoJob()
	ev := models.RawEvent{WatchPath: "/media/show", Name: "ep1.mp4", Kinds: models.KindCreate}

	first := Matches(job, ev)
	second := Matches(job, ev)
	assert.Equal(t, first, second)
	assert.True(t, first)
}
