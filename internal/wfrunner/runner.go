// Package wfrunner spawns the OCI runtime subprocess for a container bundle
// and streams its stdout/stderr and exit status as events (spec §4.D).
package wfrunner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/projecteru2/core/log"

	"github.com/warpforge/engine/internal/wferr"
	"github.com/warpforge/engine/internal/wftypes"
)

// Channel identifies which stream a line of Output came from.
type Channel int

const (
	ChannelStdout Channel = 1
	ChannelStderr Channel = 2
)

// Output is one line read from the container's stdout or stderr (spec §4.D).
type Output struct {
	Channel Channel
	Line    string
}

// ExitCode is the terminal event body carrying the container's exit status.
// Nil means the process could not be waited on (spec §4.E treats this the
// same as a nonzero code).
type ExitCode struct {
	Code *int
}

// Event is one runner event: Topic is always the container's ident, Body is
// either an Output or the terminal ExitCode (spec §4.D).
type Event struct {
	Topic string
	Body  any
}

// Backend runs a prepared container bundle and streams its events. Run below
// is the only implementation wired into the engine today (the OCI-runtime
// path of spec §4.D); the interface is a seam for an alternate low-level
// backend (a gvisor-class sandbox, say). wfexec does not hold a Backend
// value: it calls the package-level Run directly.
type Backend interface {
	Run(ctx context.Context, params wftypes.ContainerParams, bundleDir, logFile string, events chan<- Event) error
}

// OCIRuntimeBackend is the default Backend: it shells out to the configured
// OCI runtime binary via Run.
type OCIRuntimeBackend struct{}

func (OCIRuntimeBackend) Run(ctx context.Context, params wftypes.ContainerParams, bundleDir, logFile string, events chan<- Event) error {
	return Run(ctx, params, bundleDir, logFile, events)
}

// Run spawns `<runtime_path> --log=<log_file> --debug run --bundle=<bundle_dir> <ident>`,
// streams its stdout/stderr line-by-line as Output events, and emits a final
// ExitCode event, all on events, before returning (spec §4.D). events is
// never closed by Run; the caller owns its lifecycle.
func Run(ctx context.Context, params wftypes.ContainerParams, bundleDir, logFile string, events chan<- Event) error {
	args := []string{
		fmt.Sprintf("--log=%s", logFile),
		"--debug",
		"run",
		fmt.Sprintf("--bundle=%s", bundleDir),
		params.Ident,
	}
	cmd := exec.CommandContext(ctx, params.RuntimePath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// On context cancellation, signal the whole process group (the runtime
	// binary and anything it forked into the container) rather than just the
	// direct child; escalate to SIGKILL if it hasn't exited after WaitDelay.
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	devnull, err := os.Open(os.DevNull)
	if err != nil {
		return wferr.NewRuntimeError("open /dev/null for container stdin", err)
	}
	defer devnull.Close()
	cmd.Stdin = devnull

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return wferr.NewRuntimeError("attach stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return wferr.NewRuntimeError("attach stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		if os.IsNotExist(err) || os.IsPermission(err) {
			return wferr.NewSetupError(fmt.Sprintf("spawn runtime %s", params.RuntimePath), err)
		}
		return wferr.NewRuntimeError(fmt.Sprintf("spawn runtime %s", params.RuntimePath), err)
	}

	logger := log.WithFunc("wfrunner.Run")

	var g errgroup.Group
	g.Go(func() error { return streamLines(stdout, ChannelStdout, params.Ident, events) })
	g.Go(func() error { return streamLines(stderr, ChannelStderr, params.Ident, events) })

	streamErr := g.Wait()
	if streamErr != nil {
		logger.Warnf(ctx, "read container %s output: %v", params.Ident, streamErr)
	}

	waitErr := cmd.Wait()
	code := exitCodeOf(waitErr)
	events <- Event{Topic: params.Ident, Body: ExitCode{Code: code}}

	if code == nil || *code != 0 {
		return wferr.NewExitCodeError(valueOr(code, -1))
	}
	return nil
}

// streamLines reads r line-by-line, emitting an Output event per line; a
// partial final line (no trailing newline) is emitted on close (spec §4.D
// "a partial final line is emitted on close").
func streamLines(r io.Reader, ch Channel, topic string, events chan<- Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		events <- Event{Topic: topic, Body: Output{Channel: ch, Line: scanner.Text()}}
	}
	return scanner.Err()
}

// exitCodeOf extracts the process exit code from cmd.Wait's error, or nil if
// the process could not report one (spec §3 ContainerParams / §4.E).
func exitCodeOf(waitErr error) *int {
	if waitErr == nil {
		code := 0
		return &code
	}
	var exitErr *exec.ExitError
	if ok := asExitError(waitErr, &exitErr); ok {
		code := exitErr.ExitCode()
		if code < 0 {
			return nil
		}
		return &code
	}
	return nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

func valueOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}
