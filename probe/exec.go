package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/czerwonk/pingwatch/apperror"
)

// ExecGrace is added to the probe timeout to bound the lifetime of the ping
// process. The utility may take slightly longer than its own timeout to exit.
const ExecGrace = time.Second

var errMalformedHost = errors.New("malformed host")

type runFunc func(ctx context.Context, name string, args ...string) (output []byte, exitCode int, err error)

// Exec probes a host by running the operating system's ping utility.
type Exec struct {
	path  string
	goos  string
	grace time.Duration
	run   runFunc
}

// NewExec locates the ping utility in PATH.
func NewExec() (*Exec, error) {
	path, err := exec.LookPath("ping")
	if err != nil {
		return nil, fmt.Errorf("ping utility not found in PATH: %w", err)
	}

	return &Exec{
		path:  path,
		goos:  runtime.GOOS,
		grace: ExecGrace,
		run:   runCommand,
	}, nil
}

func (e *Exec) Name() string { return "exec" }

func (e *Exec) Close() error { return nil }

func (e *Exec) Probe(ctx context.Context, host string, timeout time.Duration) (Result, error) {
	if host == "" || strings.HasPrefix(host, "-") || strings.ContainsAny(host, " \t\r\n") {
		return Result{}, apperror.New(apperror.Probe, "probe.exec", fmt.Errorf("%w: %q", errMalformedHost, host))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout+e.grace)
	defer cancel()

	args := pingArgs(e.goos, host, timeout)
	out, code, err := e.run(ctx, e.path, args...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, apperror.New(apperror.Probe, "probe.exec", fmt.Errorf("ping %s: %w", host, ctxErr))
	}
	if err != nil {
		return Result{}, apperror.New(apperror.Probe, "probe.exec", fmt.Errorf("ping %s: %w", host, err))
	}

	if code != 0 {
		log.Debugf("ping %s exited with code %d", host, code)
		return Unreachable(host), nil
	}

	if ms, ok := ParseLatency(string(out)); ok {
		return Reachable(host, ms), nil
	}

	log.Debugf("ping %s succeeded but no round trip time found in output", host)
	return ReachableUnknown(host), nil
}

// pingArgs builds the arguments for a single echo request. Windows expects
// the timeout in milliseconds, the unix utilities in whole seconds.
func pingArgs(goos, host string, timeout time.Duration) []string {
	switch goos {
	case "windows":
		ms := int64(timeout / time.Millisecond)
		if ms < 1 {
			ms = 1
		}
		return []string{"-n", "1", "-w", strconv.FormatInt(ms, 10), host}
	case "darwin", "freebsd", "dragonfly":
		return []string{"-c", "1", "-t", strconv.Itoa(timeoutSeconds(timeout)), host}
	default:
		return []string{"-c", "1", "-W", strconv.Itoa(timeoutSeconds(timeout)), host}
	}
}

func timeoutSeconds(timeout time.Duration) int {
	s := int(math.Ceil(timeout.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C")
	cmd.WaitDelay = ExecGrace

	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, exitErr.ExitCode(), nil
		}
		return out, -1, err
	}

	return out, 0, nil
}
