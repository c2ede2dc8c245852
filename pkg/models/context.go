package models

// ExecutionContext holds the resolved wildcard bindings for one dispatched
// event/job pair. It lives only for the duration of one command's execution
// and its follow-up; nothing here is persisted.
type ExecutionContext struct {
	// Job is the owning job's name ($job)
	Job string

	// Folder is the job's root path ($folder)
	Folder string

	// Watched is the specific watched subdirectory the event fired in
	// ($watched)
	Watched string

	// Filename is the changed entry's base name ($filename)
	Filename string

	// Kinds is the event's kind set, rendered as $tflags and $nflags
	Kinds EventKind

	// Cookie is the move-correlation integer, 0 when absent ($cookie)
	Cookie uint32

	// Output is the primary command's captured output, bound only for
	// follow-up templates ($output); empty when capture was off
	Output string

	// Host is the local hostname, bound only for follow-up templates
	// ($host)
	Host string
}

// NewExecutionContext derives the wildcard bindings for one event matched
// against a job.
func NewExecutionContext(job *Job, event RawEvent) *ExecutionContext {
	return &ExecutionContext{
		Job:      job.Name,
		Folder:   job.RootPath,
		Watched:  event.WatchPath,
		Filename: event.Name,
		Kinds:    event.Kinds,
		Cookie:   event.Cookie,
	}
}
