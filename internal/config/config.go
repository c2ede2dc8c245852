// Package config loads and validates the direwatch job configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/direwatch/direwatch/pkg/errors"
	"github.com/direwatch/direwatch/pkg/models"
)

// videoExtensions is the expansion of the "video" alias inside
// include_extensions.
var videoExtensions = []string{
	".3g2", ".3gp", ".3gp2", ".3gpp", ".60d", ".ajp", ".asf", ".asx", ".avchd", ".avi", ".bik",
	".bix", ".box", ".cam", ".dat", ".divx", ".dmf", ".dv", ".dvr-ms", ".evo", ".flc", ".fli",
	".flic", ".flv", ".flx", ".gvi", ".gvp", ".h264", ".m1v", ".m2p", ".m2ts", ".m2v", ".m4e",
	".m4v", ".mjp", ".mjpeg", ".mjpg", ".mkv", ".moov", ".mov", ".movhd", ".movie", ".movx", ".mp4",
	".mpe", ".mpeg", ".mpg", ".mpv", ".mpv2", ".mxf", ".nsv", ".nut", ".ogg", ".ogm", ".omf", ".ps",
	".qt", ".ram", ".rm", ".rmvb", ".swf", ".ts", ".vfw", ".vid", ".video", ".viv", ".vivo", ".vob",
	".vro", ".wm", ".wmv", ".wmx", ".wrap", ".wvx", ".wx", ".x264", ".xvid",
}

// Config is the fully parsed daemon configuration: the job rules the engine
// interprets plus the process-wide settings handed through to daemonization.
type Config struct {
	Daemon models.DaemonSettings
	Jobs   []*models.Job
}

// rawJob mirrors one job section of the config file before parsing.
type rawJob struct {
	Watch             string   `mapstructure:"watch"`
	Events            []string `mapstructure:"events"`
	Command           string   `mapstructure:"command"`
	Recursive         *bool    `mapstructure:"recursive"`
	Autoadd           *bool    `mapstructure:"autoadd"`
	Excluded          []string `mapstructure:"excluded"`
	IncludeExtensions []string `mapstructure:"include_extensions"`
	ExcludeExtensions []string `mapstructure:"exclude_extensions"`
	ExcludeRe         string   `mapstructure:"exclude_re"`
	Background        bool     `mapstructure:"background"`
	LogOutput         *bool    `mapstructure:"log_output"`
	Outfile           string   `mapstructure:"outfile"`
	OnSuccess         string   `mapstructure:"on_success"`
	OnFailure         string   `mapstructure:"on_failure"`
}

// Load reads the jobs and daemon settings out of the supplied viper instance.
// All parse-level validation happens here: an invalid event name, a malformed
// regex or a relative watch path fails the load, so a caller can reject a
// configuration before committing to run.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	if err := v.UnmarshalKey("daemon", &cfg.Daemon); err != nil {
		return nil, errors.NewConfigError("failed to parse daemon settings", err)
	}

	var raw map[string]rawJob
	if err := v.UnmarshalKey("jobs", &raw); err != nil {
		return nil, errors.NewConfigError("failed to parse jobs", err)
	}
	if len(raw) == 0 {
		return nil, errors.NewConfigError("no jobs configured", nil)
	}

	// Deterministic job order regardless of map iteration
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		job, err := buildJob(name, raw[name])
		if err != nil {
			return nil, err
		}
		cfg.Jobs = append(cfg.Jobs, job)
	}

	return cfg, nil
}

// buildJob turns one raw config section into an immutable Job record.
func buildJob(name string, raw rawJob) (*models.Job, error) {
	if raw.Watch == "" {
		return nil, errors.NewConfigError("missing watch path", nil).WithJob(name)
	}
	if !filepath.IsAbs(raw.Watch) {
		return nil, errors.NewConfigError(fmt.Sprintf("watch path %q is not absolute", raw.Watch), nil).WithJob(name)
	}
	if raw.Command == "" {
		return nil, errors.NewConfigError("missing command", nil).WithJob(name)
	}
	if len(raw.Events) == 0 {
		return nil, errors.NewConfigError("missing events", nil).WithJob(name)
	}

	var mask models.EventKind
	for _, entry := range raw.Events {
		// comma-joined entries are valid inside a list element too
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			kind, ok := models.ParseEventKind(part)
			if !ok {
				return nil, errors.NewConfigError(
					fmt.Sprintf("unknown event kind %q (valid: %s)", part, strings.Join(models.KindNames(), ", ")),
					nil).WithJob(name)
			}
			mask |= kind
		}
	}
	if mask == 0 {
		return nil, errors.NewConfigError("empty event mask", nil).WithJob(name)
	}

	var excludeRe *regexp.Regexp
	if raw.ExcludeRe != "" {
		re, err := regexp.Compile(raw.ExcludeRe)
		if err != nil {
			return nil, errors.NewConfigError(fmt.Sprintf("invalid exclude_re %q", raw.ExcludeRe), err).WithJob(name)
		}
		excludeRe = re
	}

	var excluded []string
	for _, p := range raw.Excluded {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			return nil, errors.NewConfigError(fmt.Sprintf("excluded path %q is not absolute", p), nil).WithJob(name)
		}
		excluded = append(excluded, filepath.Clean(p))
	}

	job := &models.Job{
		Name:               name,
		RootPath:           filepath.Clean(raw.Watch),
		EventMask:          mask,
		ExcludedPaths:      excluded,
		IncludeExtensions:  normalizeExtensions(raw.IncludeExtensions, true),
		ExcludeExtensions:  normalizeExtensions(raw.ExcludeExtensions, false),
		ExcludeNamePattern: excludeRe,
		Recursive:          boolDefault(raw.Recursive, true),
		Autoadd:            boolDefault(raw.Autoadd, true),
		CommandTemplate:    raw.Command,
		Background:         raw.Background,
		LogOutput:          boolDefault(raw.LogOutput, true),
		OnSuccessTemplate:  raw.OnSuccess,
		OnFailureTemplate:  raw.OnFailure,
	}

	// The outfile template only knows $job and is resolved once, unquoted,
	// at load time.
	if raw.Outfile != "" {
		job.OutFile = strings.ReplaceAll(raw.Outfile, "$job", name)
	}

	return job, nil
}

// normalizeExtensions lowercases the extension set and guarantees a leading
// dot; expandVideo resolves the "video" alias for include sets.
func normalizeExtensions(exts []string, expandVideo bool) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(ext string) {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || seen[ext] {
			return
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if !seen[ext] {
			seen[ext] = true
			out = append(out, ext)
		}
	}
	for _, entry := range exts {
		for _, ext := range strings.Split(entry, ",") {
			if expandVideo && strings.TrimSpace(strings.ToLower(ext)) == "video" {
				for _, v := range videoExtensions {
					add(v)
				}
				continue
			}
			add(ext)
		}
	}
	return out
}

func boolDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Validate performs the filesystem-level checks that only make sense at the
// moment the daemon is about to run, and returns warnings for settings that
// are legal but inert.
func Validate(cfg *Config) ([]string, error) {
	var warnings []string

	for _, job := range cfg.Jobs {
		info, err := os.Stat(job.RootPath)
		if err != nil {
			return warnings, errors.NewConfigError(fmt.Sprintf("watch path %q is not accessible", job.RootPath), err).WithJob(job.Name)
		}
		if !info.IsDir() {
			return warnings, errors.NewConfigError(fmt.Sprintf("watch path %q is not a directory", job.RootPath), nil).WithJob(job.Name)
		}

		if job.Autoadd && !job.Recursive {
			warnings = append(warnings, fmt.Sprintf("%s: autoadd has no effect without recursive", job.Name))
		}
		for _, excl := range job.ExcludedPaths {
			if !strings.HasPrefix(excl, job.RootPath+string(filepath.Separator)) && excl != job.RootPath {
				warnings = append(warnings, fmt.Sprintf("%s: excluded path %s is outside the watched tree", job.Name, excl))
			}
		}

		// The fsnotify backend cannot report these kinds (moves into a
		// watched directory surface as create); a mask made only of
		// them will never fire on this platform.
		unreportable := models.KindAccess | models.KindOpen | models.KindWriteClose |
			models.KindNowriteClose | models.KindMoveTo
		if job.EventMask&^unreportable == 0 {
			warnings = append(warnings, fmt.Sprintf("%s: event mask %q is never reported by this platform's event source", job.Name, job.EventMask))
		}
	}

	return warnings, nil
}
