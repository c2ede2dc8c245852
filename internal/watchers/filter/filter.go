// Package filter decides whether a raw notification is relevant to a job.
package filter

import (
	"path/filepath"
	"strings"

	"github.com/direwatch/direwatch/pkg/models"
)

// Matches reports whether the event passes the job's filters. It is a pure
// predicate over its inputs: no side effects, same answer for same inputs.
//
// Checks run in order and short-circuit on the first failure:
//  1. the event's kinds intersect the job's event mask
//  2. the event's directory is not under an excluded path
//  3. the filename extension passes the include and exclude sets
//  4. the base filename does not match the exclusion pattern
//
// Directory events skip the extension and name checks: directories have no
// extension semantics under this model.
func Matches(job *models.Job, event models.RawEvent) bool {
	if !event.Kinds.Has(job.EventMask) {
		return false
	}

	if underAny(filepath.Clean(event.WatchPath), job.ExcludedPaths) {
		return false
	}

	if event.IsDir {
		return true
	}

	if len(job.IncludeExtensions) > 0 && !hasExtension(event.Name, job.IncludeExtensions) {
		return false
	}
	if len(job.ExcludeExtensions) > 0 && hasExtension(event.Name, job.ExcludeExtensions) {
		return false
	}

	if job.ExcludeNamePattern != nil && job.ExcludeNamePattern.MatchString(event.Name) {
		return false
	}

	return true
}

// underAny reports whether dir equals or descends from any of the paths.
func underAny(dir string, paths []string) bool {
	for _, p := range paths {
		if dir == p || strings.HasPrefix(dir, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// hasExtension reports whether the filename ends in one of the normalized
// (dot-prefixed, lowercase) extensions.
func hasExtension(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
