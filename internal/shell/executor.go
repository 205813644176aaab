// Package shell executes remote command requests in a constrained
// subprocess: cleared environment, optional working directory, hard
// timeout with kill.
package shell

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"retsh/internal/errors"
	"retsh/internal/proto"
	"retsh/util"
)

// waitDelay bounds how long Run lingers after a kill when the child's
// pipes are held open by an orphaned grandchild.
const waitDelay = 5 * time.Second

// Executor runs command requests.  It is stateless and safe for
// concurrent use.
type Executor struct {
	defaultTimeout time.Duration
	log            *util.Logger
}

// NewExecutor creates an executor whose requests without an explicit
// timeout fall back to defaultTimeout.
func NewExecutor(defaultTimeout time.Duration, logger *util.Logger) *Executor {
	return &Executor{defaultTimeout: defaultTimeout, log: logger.With("exec")}
}

// ValidateRequest applies the security checks that must pass before a
// process is spawned: a non-empty command and a working directory free
// of parent-directory traversal.
func (e *Executor) ValidateRequest(req *proto.CommandRequest) error {
	if req.Command == "" {
		return &errors.ExecError{Reason: "command cannot be empty"}
	}
	if strings.Contains(req.WorkingDir, "..") {
		return &errors.ExecError{Reason: "path traversal not allowed in working directory"}
	}
	return nil
}

// Execute runs the request and always returns a well-formed response;
// spawn failures and timeouts become Error/Timeout statuses rather than
// errors, so a failing command never tears down the connection.
func (e *Executor) Execute(ctx context.Context, req proto.CommandRequest) proto.CommandResponse {
	start := time.Now()

	timeout := e.defaultTimeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.log.Debug("executing %q %v (timeout %s)", req.Command, req.Args, timeout)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(cctx, req.Command, req.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	// Never inherit the server's environment; the child sees only what
	// the request supplies.
	env := make([]string, 0, len(req.Env))
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}

	err := cmd.Run()

	resp := e.classify(req.ID, err, cctx.Err(), stdout.Bytes(), stderr.Bytes())
	resp.ExecutionTimeMs = uint64(time.Since(start).Milliseconds())
	return resp
}

// classify maps a finished run onto a response status.  A run that
// returned no error is a success even if the deadline expired while it
// was being reaped; only a failed run with an expired deadline is a
// timeout.
func (e *Executor) classify(id uint64, runErr, ctxErr error, stdout, stderr []byte) proto.CommandResponse {
	if runErr == nil {
		e.log.Debug("command %d completed", id)
		return proto.CommandResponse{
			ID:     id,
			Status: proto.StatusSuccess,
			Stdout: stdout,
			Stderr: stderr,
		}
	}

	if ctxErr == context.DeadlineExceeded {
		// The child is killed on timeout; partial output is discarded.
		e.log.Warn("command %d timed out", id)
		return proto.CommandResponse{
			ID:       id,
			Status:   proto.StatusTimeout,
			ExitCode: -1,
		}
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		status := proto.StatusError
		code := int32(exitErr.ExitCode())
		if code == -1 {
			// Terminated by a signal we did not send.
			status = proto.StatusKilled
		}
		e.log.Debug("command %d exited %d", id, code)
		return proto.CommandResponse{
			ID:       id,
			Status:   status,
			Stdout:   stdout,
			Stderr:   stderr,
			ExitCode: code,
		}
	}

	// The process never started.
	e.log.Warn("command %d failed to start: %v", id, runErr)
	return proto.CommandResponse{
		ID:       id,
		Status:   proto.StatusError,
		Stderr:   []byte(runErr.Error()),
		ExitCode: -1,
	}
}
