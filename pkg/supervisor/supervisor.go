package supervisor

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mcserverd/mcserverd/pkg/events"
	"github.com/mcserverd/mcserverd/pkg/log"
	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// crashBackoff is the fixed delay between a crash and the next spawn
// attempt, regardless of crash_handling mode.
const crashBackoff = 5 * time.Second

// monitorInterval is how often the resource-usage goroutine samples the
// child process.
const monitorInterval = time.Second

// logBufferSize bounds the per-instance log broadcast; slow subscribers
// drop lines rather than stall the producer.
const logBufferSize = 100

// LogLine is one line forwarded from a child process's stdout/stderr, or a
// supervisor-generated status line.
type LogLine struct {
	Stream    string // "stdout", "stderr", "system"
	Text      string
	Timestamp time.Time
}

// ProgressEvent reports install/materialize progress while a Supervisor is
// in StatusInstalling.
type ProgressEvent struct {
	Stage   string
	Percent int
}

// LogFunc is handed to a PrepareFunc so install-phase output lands in the
// same broadcast as server-phase output.
type LogFunc func(line string)

// ProgressFunc is handed to a PrepareFunc to report install percentage.
type ProgressFunc func(stage string, percent int)

// PrepareFunc materializes the instance's binary when it is missing. It is
// injected by the orchestrator so this package never imports pkg/loader.
type PrepareFunc func(ctx context.Context, log LogFunc, progress ProgressFunc) error

// BinaryExistsFunc reports whether the instance's runnable binary/script is
// already present, so Start knows whether to invoke PrepareFunc first.
type BinaryExistsFunc func() bool

// Supervisor owns the single long-lived goroutine responsible for one
// instance's child process.
type Supervisor struct {
	instanceID string
	logger     zerolog.Logger

	logs     *events.Broker[LogLine]
	progress *events.Broker[ProgressEvent]

	mu            sync.Mutex
	config        types.ServerConfig
	status        types.ServerStatus
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	usage         *types.ResourceUsage
	players       map[string]struct{}
	stopRequested bool
	doneCh        chan struct{}
	generation    int
}

// New creates a Supervisor for instanceID in StatusStopped.
func New(instanceID string, config types.ServerConfig) *Supervisor {
	s := &Supervisor{
		instanceID: instanceID,
		logger:     log.WithInstanceID(instanceID),
		logs:       events.NewBroker[LogLine](logBufferSize),
		progress:   events.NewBroker[ProgressEvent](16),
		config:     config,
		status:     types.StatusStopped,
		players:    make(map[string]struct{}),
	}
	s.logs.Start()
	s.progress.Start()
	return s
}

// UpdateConfig replaces the launch configuration used by the next spawn.
// It does not affect an already-running child.
func (s *Supervisor) UpdateConfig(config types.ServerConfig) {
	s.mu.Lock()
	s.config = config
	s.mu.Unlock()
}

// Status returns the current lifecycle state.
func (s *Supervisor) Status() types.ServerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Usage returns the most recent CPU/RAM sample, if the child is running.
func (s *Supervisor) Usage() (*types.ResourceUsage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.usage == nil {
		return nil, false
	}
	cp := *s.usage
	return &cp, true
}

// OnlinePlayerCount returns the number of players the stdout scanner has
// seen join without a matching leave.
func (s *Supervisor) OnlinePlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// OnlinePlayers returns the current online player names.
func (s *Supervisor) OnlinePlayers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.players))
	for p := range s.players {
		out = append(out, p)
	}
	return out
}

// SubscribeLogs returns a channel receiving every log line this Supervisor
// broadcasts, from install progress through server stdout/stderr.
func (s *Supervisor) SubscribeLogs() events.Subscriber[LogLine] {
	return s.logs.Subscribe()
}

// SubscribeProgress returns a channel receiving install-phase progress.
func (s *Supervisor) SubscribeProgress() events.Subscriber[ProgressEvent] {
	return s.progress.Subscribe()
}

func (s *Supervisor) publishLog(stream, text string) {
	s.logs.Publish(LogLine{Stream: stream, Text: text, Timestamp: time.Now()})
}

func (s *Supervisor) setStatus(status types.ServerStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Start brings the instance from Stopped to Starting (and, if the binary
// is missing, through Installing first). It returns once the spawn attempt
// has completed — by the time it returns, Status() observes Starting or
// later. The respawn-on-crash loop continues in the background.
func (s *Supervisor) Start(ctx context.Context, binaryExists BinaryExistsFunc, prepare PrepareFunc) error {
	s.mu.Lock()
	if s.status == types.StatusRunning || s.status == types.StatusStarting || s.status == types.StatusInstalling {
		s.mu.Unlock()
		return nil
	}
	s.stopRequested = false
	s.mu.Unlock()

	if binaryExists != nil && !binaryExists() {
		s.setStatus(types.StatusInstalling)
		s.publishLog("system", "installing server binary")
		err := prepare(ctx,
			func(line string) { s.publishLog("system", line) },
			func(stage string, percent int) { s.progress.Publish(ProgressEvent{Stage: stage, Percent: percent}) },
		)
		if err != nil {
			s.setStatus(types.StatusCrashed)
			s.publishLog("system", fmt.Sprintf("install failed: %v", err))
			return err
		}
	}

	if err := s.spawn(ctx); err != nil {
		s.setStatus(types.StatusCrashed)
		s.publishLog("system", fmt.Sprintf("spawn failed: %v", err))
		return err
	}

	go s.lifecycleLoop(ctx)
	return nil
}

// Stop transitions to Stopping, requests a graceful shutdown, and escalates
// to a forced kill if the child outlives stop_timeout. It does not return
// until Status() observes Stopped.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.status == types.StatusStopped {
		s.mu.Unlock()
		return nil
	}
	s.stopRequested = true
	cmd := s.cmd
	stdin := s.stdin
	doneCh := s.doneCh
	s.status = types.StatusStopping
	s.mu.Unlock()

	s.publishLog("system", "stop requested")

	if cmd == nil || doneCh == nil {
		s.setStatus(types.StatusStopped)
		return nil
	}

	if stdin != nil {
		io.WriteString(stdin, "stop\n")
	}

	timeout := s.config.StopTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case <-doneCh:
		return nil
	case <-time.After(timeout):
	case <-ctx.Done():
	}

	s.publishLog("system", "stop timeout exceeded, forcing shutdown")
	if runtime.GOOS == "windows" {
		exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprint(cmd.Process.Pid)).Run()
	}
	if cmd.Process != nil {
		cmd.Process.Kill()
	}

	select {
	case <-doneCh:
	case <-time.After(10 * time.Second):
		s.setStatus(types.StatusStopped)
	}
	return nil
}

// SendCommand writes a line to the child's stdin. It returns an error
// unless the instance is Running.
func (s *Supervisor) SendCommand(command string) error {
	s.mu.Lock()
	stdin := s.stdin
	running := s.status == types.StatusRunning
	s.mu.Unlock()

	if !running || stdin == nil {
		return fmt.Errorf("instance %s is not running", s.instanceID)
	}
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	_, err := io.WriteString(stdin, command)
	return err
}

// lifecycleLoop is the single long-lived goroutine per instance: it waits
// for the current child to exit, classifies the exit, and either settles
// into Stopped/Crashed or sleeps crashBackoff and respawns.
func (s *Supervisor) lifecycleLoop(ctx context.Context) {
	for {
		s.mu.Lock()
		cmd := s.cmd
		doneCh := s.doneCh
		s.mu.Unlock()

		var waitErr error
		if cmd != nil {
			waitErr = cmd.Wait()
		}

		s.mu.Lock()
		stopping := s.stopRequested || s.status == types.StatusStopping
		crashHandling := s.config.CrashHandling
		s.cmd = nil
		s.stdin = nil
		s.usage = nil
		s.players = make(map[string]struct{})
		s.mu.Unlock()

		graceful := stopping || waitErr == nil

		if graceful {
			s.setStatus(types.StatusStopped)
			s.publishLog("system", "process stopped")
			close(doneCh)
			return
		}

		s.setStatus(types.StatusCrashed)
		s.publishLog("system", fmt.Sprintf("process exited unexpectedly: %v", waitErr))
		close(doneCh)

		restart := false
		switch crashHandling {
		case types.CrashHandlingAggressive:
			restart = true
		case types.CrashHandlingElevatedOnly:
			restart = waitErr != nil
		case types.CrashHandlingNothing:
			restart = false
		}
		if !restart {
			return
		}

		select {
		case <-time.After(crashBackoff):
		case <-ctx.Done():
			return
		}

		s.mu.Lock()
		shouldStop := s.stopRequested
		s.mu.Unlock()
		if shouldStop {
			s.setStatus(types.StatusStopped)
			return
		}

		s.publishLog("system", "restarting after crash")
		if err := s.spawn(ctx); err != nil {
			s.setStatus(types.StatusCrashed)
			s.publishLog("system", fmt.Sprintf("respawn failed: %v", err))
			return
		}
	}
}

// sampleUsage polls the child process's CPU/RAM via gopsutil until it
// disappears or the done channel closes.
func (s *Supervisor) sampleUsage(pid int, doneCh <-chan struct{}) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-doneCh:
			return
		case <-ticker.C:
			cpuPct, err := proc.CPUPercent()
			if err != nil {
				return
			}
			memInfo, err := proc.MemoryInfo()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.usage = &types.ResourceUsage{
				CPUPercent: cpuPct,
				MemoryRSS:  memInfo.RSS,
				SampledAt:  time.Now(),
			}
			s.mu.Unlock()
		}
	}
}
