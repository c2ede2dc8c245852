package models

import (
	"regexp"
)

// Job is one named watch rule: an immutable, fully parsed configuration
// record binding a root path, an event mask, filters and command templates.
type Job struct {
	// Name is the unique job identifier (the config section name)
	Name string

	// RootPath is the absolute filesystem path to watch
	RootPath string

	// EventMask is the set of event kinds of interest, aliases expanded
	EventMask EventKind

	// ExcludedPaths are absolute directory paths never watched, even
	// under a recursive root
	ExcludedPaths []string

	// IncludeExtensions and ExcludeExtensions filter by filename
	// extension; both are normalized to a leading dot at load time
	IncludeExtensions []string
	ExcludeExtensions []string

	// ExcludeNamePattern rejects events whose base filename matches,
	// search semantics (unanchored)
	ExcludeNamePattern *regexp.Regexp

	// Recursive watches subdirectories; Autoadd registers subdirectories
	// created after startup (meaningful only when Recursive is set)
	Recursive bool
	Autoadd   bool

	// CommandTemplate is the primary command with wildcard placeholders
	CommandTemplate string

	// Background allows concurrent executions of the primary command
	Background bool

	// LogOutput captures stdout+stderr; OutFile, when set, receives the
	// captured output in append mode ($job is resolved at load time)
	LogOutput bool
	OutFile   string

	// OnSuccessTemplate and OnFailureTemplate are the optional follow-up
	// commands chained on the primary command's exit status
	OnSuccessTemplate string
	OnFailureTemplate string
}

// DaemonSettings carries the process-wide options consumed by the
// daemonization machinery outside the dispatch core. They are parsed and
// passed through unmodified.
type DaemonSettings struct {
	LogFile          string `mapstructure:"logfile"`
	PIDFile          string `mapstructure:"pidfile"`
	WorkingDirectory string `mapstructure:"working_directory"`
	Umask            int    `mapstructure:"umask"`
	UID              int    `mapstructure:"uid"`
	GID              int    `mapstructure:"gid"`
}
