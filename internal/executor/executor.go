// Package executor runs job commands and their follow-ups.
package executor

import (
	stderrors "errors"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/direwatch/direwatch/internal/core/interfaces"
	"github.com/direwatch/direwatch/internal/wildcard"
	"github.com/direwatch/direwatch/pkg/errors"
	"github.com/direwatch/direwatch/pkg/logger"
	"github.com/direwatch/direwatch/pkg/models"
)

// historyOutputLimit bounds the output stored per run record.
const historyOutputLimit = 4096

// Executor spawns the expanded primary command for each dispatched event and
// chains the configured follow-up on its exit status.
//
// One invocation walks Pending -> Running -> Succeeded/Failed, then through
// the follow-up (when configured) to Done. Background jobs run each
// invocation on its own goroutine; synchronous jobs go through a per-job
// admission gate holding one in-flight invocation and an unbounded FIFO of
// pending ones, so arrival order is preserved and the dispatcher never
// blocks.
type Executor struct {
	shell    string
	recorder interfaces.RunRecorder
	logger   *zap.Logger

	gatesMu sync.Mutex
	gates   map[string]*jobGate
	wg      sync.WaitGroup
}

// jobGate is the capacity-one admission queue for a synchronous job.
type jobGate struct {
	mu      sync.Mutex
	job     *models.Job
	pending []*models.ExecutionContext
	running bool
}

// New creates an executor. The recorder is optional; nil disables the
// execution history.
func New(recorder interfaces.RunRecorder) *Executor {
	return &Executor{
		shell:    "/bin/sh",
		recorder: recorder,
		logger:   logger.Get(),
		gates:    make(map[string]*jobGate),
	}
}

// Dispatch hands one matched event to the executor. It never blocks: a
// background job starts immediately on its own goroutine, a synchronous job
// is queued behind its gate and drained in arrival order.
func (e *Executor) Dispatch(job *models.Job, ectx *models.ExecutionContext) {
	if job.Background {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.run(job, ectx)
		}()
		return
	}

	gate := e.gateFor(job)

	gate.mu.Lock()
	gate.pending = append(gate.pending, ectx)
	if !gate.running {
		gate.running = true
		e.wg.Add(1)
		go e.drain(gate)
	}
	gate.mu.Unlock()
}

// Wait blocks until every in-flight and queued invocation has reached Done.
// Termination waits unconditionally; there is no kill timeout.
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) gateFor(job *models.Job) *jobGate {
	e.gatesMu.Lock()
	defer e.gatesMu.Unlock()

	gate, ok := e.gates[job.Name]
	if !ok {
		gate = &jobGate{job: job}
		e.gates[job.Name] = gate
	}
	return gate
}

// drain releases queued invocations one at a time, in arrival order.
func (e *Executor) drain(gate *jobGate) {
	defer e.wg.Done()

	for {
		gate.mu.Lock()
		if len(gate.pending) == 0 {
			gate.running = false
			gate.mu.Unlock()
			return
		}
		ectx := gate.pending[0]
		gate.pending = gate.pending[1:]
		gate.mu.Unlock()

		e.run(gate.job, ectx)
	}
}

// run executes one full invocation: primary command, output handling,
// follow-up, history record.
func (e *Executor) run(job *models.Job, ectx *models.ExecutionContext) {
	command := wildcard.Expand(job.CommandTemplate, ectx)
	record := models.NewRun(job.Name, command)

	e.logger.Info("Running command",
		zap.String("job", job.Name),
		zap.String("command", command),
		zap.String("run_id", record.ID),
		zap.Bool("background", job.Background),
	)

	// stdout and stderr are captured combined, through a single pipe.
	cmd := exec.Command(e.shell, "-c", command)
	output, err := cmd.CombinedOutput()

	exitCode := 0
	var spawnErr error
	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// Could not spawn at all; treated as a failed exit for
			// follow-up purposes.
			exitCode = -1
			spawnErr = errors.NewExecError("failed to spawn command", err)
			e.logger.Error("Failed to spawn command",
				zap.String("job", job.Name),
				zap.String("command", command),
				zap.Error(err),
			)
		}
	}
	if cmd.Process != nil {
		record.PID = cmd.Process.Pid
	}
	record.Finish(exitCode, spawnErr)
	record.Output = truncate(output, historyOutputLimit)

	if record.Succeeded() {
		e.logger.Info("Command finished",
			zap.String("job", job.Name),
			zap.String("run_id", record.ID),
			zap.Int("exit_code", exitCode),
		)
	} else if spawnErr == nil {
		e.logger.Info("Command failed",
			zap.String("job", job.Name),
			zap.String("run_id", record.ID),
			zap.Int("exit_code", exitCode),
		)
	}

	e.writeOutput(job, output)
	e.followup(job, ectx, record, output)

	if e.recorder != nil {
		if err := e.recorder.Save(record); err != nil {
			e.logger.Warn("Failed to record run history",
				zap.String("job", job.Name),
				zap.String("run_id", record.ID),
				zap.Error(err),
			)
		}
	}
}

// writeOutput appends the captured output to the job's outfile, or echoes it
// into the daemon log when no outfile is configured. The outfile write is a
// single append-mode call so concurrent background invocations never
// interleave partial chunks.
func (e *Executor) writeOutput(job *models.Job, output []byte) {
	if !job.LogOutput || len(output) == 0 {
		return
	}

	if job.OutFile == "" {
		e.logger.Info("Command output",
			zap.String("job", job.Name),
			zap.ByteString("output", output),
		)
		return
	}

	f, err := os.OpenFile(job.OutFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		e.logger.Error("Failed to open outfile",
			zap.String("job", job.Name),
			zap.String("outfile", job.OutFile),
			zap.Error(err),
		)
		return
	}
	defer f.Close()

	if _, err := f.Write(output); err != nil {
		e.logger.Error("Failed to write outfile",
			zap.String("job", job.Name),
			zap.String("outfile", job.OutFile),
			zap.Error(err),
		)
	}
}

// followup expands and runs the on-success or on-failure command. It is
// fire-and-forget: its own exit status is logged, never chained further.
func (e *Executor) followup(job *models.Job, ectx *models.ExecutionContext, record *models.Run, output []byte) {
	template := job.OnFailureTemplate
	if record.Succeeded() {
		template = job.OnSuccessTemplate
	}
	if template == "" {
		return
	}

	// $output is bound to the captured output only when capture was on.
	if job.LogOutput {
		ectx.Output = string(output)
	}
	host, err := os.Hostname()
	if err != nil {
		e.logger.Warn("Failed to resolve hostname", zap.Error(err))
	}
	ectx.Host = host

	command := wildcard.ExpandFollowup(template, ectx)
	record.Followup = command

	e.logger.Info("Dispatching follow-up",
		zap.String("job", job.Name),
		zap.String("run_id", record.ID),
		zap.String("command", command),
	)

	cmd := exec.Command(e.shell, "-c", command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		e.logger.Error("Follow-up failed",
			zap.String("job", job.Name),
			zap.String("run_id", record.ID),
			zap.ByteString("output", out),
			zap.Error(err),
		)
		return
	}
	e.logger.Debug("Follow-up finished",
		zap.String("job", job.Name),
		zap.String("run_id", record.ID),
		zap.ByteString("output", out),
	)
}

func truncate(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit])
}
