package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/mcserverd/mcserverd/pkg/types"
)

// buildCommand turns a ServerConfig into an *exec.Cmd. A run-script wins
// over a bare binary path. Among binary paths, a ".jar" is always launched
// through the configured (or system) java binary with the terminal/log4j
// flags a Minecraft server expects when its stdin/stdout are piped rather
// than attached to a tty; anything else (Bedrock's native executable) is
// spawned directly.
func buildCommand(ctx context.Context, cfg types.ServerConfig) (*exec.Cmd, error) {
	switch {
	case cfg.RunScript != "":
		if runtime.GOOS == "windows" {
			return exec.CommandContext(ctx, "cmd", "/c", cfg.RunScript), nil
		}
		return exec.CommandContext(ctx, "sh", cfg.RunScript), nil

	case strings.HasSuffix(cfg.JarPath, ".jar"):
		javaPath := cfg.JavaPath
		if javaPath == "" {
			javaPath = "java"
		}
		args := []string{
			fmt.Sprintf("-Xmx%s", cfg.MaxMemory),
			fmt.Sprintf("-Xms%s", cfg.MinMemory),
			"-Dterminal.jline=false",
			"-Dterminal.ansi=true",
			"-Dlog4j.skipJansi=false",
			"-jar", cfg.JarPath,
		}
		args = append(args, cfg.Args...)
		return exec.CommandContext(ctx, javaPath, args...), nil

	case cfg.JarPath != "":
		return exec.CommandContext(ctx, cfg.JarPath, cfg.Args...), nil

	default:
		return nil, fmt.Errorf("server config for %q has neither a run script nor a binary path", cfg.Name)
	}
}

// spawn starts the child process for the current config, wires stdin, and
// launches the stdout/stderr/monitor goroutines. On success the status is
// Starting and a fresh doneCh is in place for this generation.
func (s *Supervisor) spawn(ctx context.Context) error {
	s.mu.Lock()
	cfg := s.config
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	cmd, err := buildCommand(ctx, cfg)
	if err != nil {
		return err
	}
	cmd.Dir = cfg.WorkingDir

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting process: %w", err)
	}

	doneCh := make(chan struct{})

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdinPipe
	s.doneCh = doneCh
	s.status = types.StatusStarting
	s.mu.Unlock()

	s.publishLog("system", fmt.Sprintf("process started (pid %d)", cmd.Process.Pid))

	go s.readStdout(bufio.NewScanner(stdoutPipe), gen)
	go s.readStderr(bufio.NewScanner(stderrPipe), gen)
	go s.sampleUsage(cmd.Process.Pid, doneCh)

	return nil
}

// readStdout scans stdout line by line, strips ANSI escapes, tracks the
// ready-marker/join/leave predicates, and forwards every line to the log
// broadcast. gen guards against a goroutine from a previous spawn racing a
// new one after a crash-restart.
func (s *Supervisor) readStdout(scanner *bufio.Scanner, gen int) {
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := stripANSI(scanner.Text())
		s.publishLog("stdout", line)

		s.mu.Lock()
		current := s.generation == gen
		starting := s.status == types.StatusStarting
		s.mu.Unlock()
		if !current {
			continue
		}

		if starting && isReadyMarker(line) {
			s.setStatus(types.StatusRunning)
			s.publishLog("system", "server ready")
		}

		if name, ok := parseJoin(line); ok {
			s.addPlayer(name)
		} else if name, ok := parseLeave(line); ok {
			s.removePlayer(name)
		}
	}
}

// readStderr forwards stderr lines verbatim, tagged so log consumers can
// tell them apart from stdout.
func (s *Supervisor) readStderr(scanner *bufio.Scanner, gen int) {
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := stripANSI(scanner.Text())
		s.mu.Lock()
		current := s.generation == gen
		s.mu.Unlock()
		if !current {
			continue
		}
		s.publishLog("stderr", "ERROR: "+line)
	}
}

func (s *Supervisor) addPlayer(name string) {
	s.mu.Lock()
	s.players[name] = struct{}{}
	s.mu.Unlock()
}

func (s *Supervisor) removePlayer(name string) {
	s.mu.Lock()
	delete(s.players, name)
	s.mu.Unlock()
}
