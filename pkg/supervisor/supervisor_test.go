package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func waitForStatus(t *testing.T, s *Supervisor, want types.ServerStatus, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Status() == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("status never reached %q, last was %q", want, s.Status())
}

func TestStartReachesRunningAndStopIsGraceful(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, `#!/bin/sh
echo 'Done (1.234s)! For help, type "help"'
while IFS= read -r line; do
  if [ "$line" = "stop" ]; then
    exit 0
  fi
done
`)

	cfg := types.ServerConfig{
		Name: "test", WorkingDir: dir, RunScript: script,
		CrashHandling: types.CrashHandlingNothing, StopTimeout: 2 * time.Second,
	}
	s := New("inst-1", cfg)

	require.NoError(t, s.Start(context.Background(), nil, nil))
	require.Contains(t, []types.ServerStatus{types.StatusStarting, types.StatusRunning}, s.Status())

	waitForStatus(t, s, types.StatusRunning, 2*time.Second)

	require.NoError(t, s.Stop(context.Background()))
	require.Equal(t, types.StatusStopped, s.Status())
}

func TestStartRunsPrepareWhenBinaryMissing(t *testing.T) {
	dir := t.TempDir()
	cfg := types.ServerConfig{Name: "test", WorkingDir: dir, CrashHandling: types.CrashHandlingNothing}
	s := New("inst-2", cfg)

	script := writeScript(t, dir, "#!/bin/sh\nexit 0\n")
	prepared := false

	err := s.Start(context.Background(),
		func() bool { return false },
		func(ctx context.Context, log LogFunc, progress ProgressFunc) error {
			prepared = true
			progress("downloading", 100)
			log("install complete")
			s.UpdateConfig(types.ServerConfig{Name: "test", WorkingDir: dir, RunScript: script, CrashHandling: types.CrashHandlingNothing})
			return nil
		},
	)
	require.NoError(t, err)
	require.True(t, prepared)
	waitForStatus(t, s, types.StatusStopped, 2*time.Second)
}

func TestCrashHandlingAggressiveRestarts(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "attempts")
	script := writeScript(t, dir, `#!/bin/sh
echo x >> `+marker+`
exit 1
`)

	cfg := types.ServerConfig{
		Name: "test", WorkingDir: dir, RunScript: script,
		CrashHandling: types.CrashHandlingAggressive,
	}
	s := New("inst-3", cfg)
	require.NoError(t, s.Start(context.Background(), nil, nil))

	waitForStatus(t, s, types.StatusCrashed, 2*time.Second)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		data, _ := os.ReadFile(marker)
		if len(data) >= 4 {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("expected at least two launches (one restart) recorded in marker file")
}

func TestCrashHandlingNothingStaysCrashed(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "#!/bin/sh\nexit 1\n")

	cfg := types.ServerConfig{Name: "test", WorkingDir: dir, RunScript: script, CrashHandling: types.CrashHandlingNothing}
	s := New("inst-4", cfg)
	require.NoError(t, s.Start(context.Background(), nil, nil))

	waitForStatus(t, s, types.StatusCrashed, 2*time.Second)
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, types.StatusCrashed, s.Status())
}

func TestSendCommandRejectedWhenNotRunning(t *testing.T) {
	s := New("inst-5", types.ServerConfig{Name: "test"})
	require.Error(t, s.SendCommand("say hi"))
}

func TestStripANSI(t *testing.T) {
	require.Equal(t, "hello world", stripANSI("\x1b[32mhello\x1b[0m world"))
}

func TestIsReadyMarker(t *testing.T) {
	require.True(t, isReadyMarker(`Done (12.345s)! For help, type "help" (then /help)`))
	require.True(t, isReadyMarker("RCON running on 0.0.0.0:25575"))
	require.False(t, isReadyMarker("Starting minecraft server version 1.20.4"))
}

func TestParseJoinLeave(t *testing.T) {
	name, ok := parseJoin(`[12:00:00] [Server thread/INFO]: Steve joined the game`)
	require.True(t, ok)
	require.Equal(t, "Steve", name)

	name, ok = parseLeave(`[12:05:00] [Server thread/INFO]: Steve left the game`)
	require.True(t, ok)
	require.Equal(t, "Steve", name)

	name, ok = parseJoin(`[INFO] Alex connected: /127.0.0.1:54321`)
	require.True(t, ok)
	require.Equal(t, "Alex", name)
}

func TestBuildCommandJarIncludesMemoryFlags(t *testing.T) {
	cfg := types.ServerConfig{Name: "test", JarPath: "server.jar", MinMemory: "1G", MaxMemory: "4G"}
	cmd, err := buildCommand(context.Background(), cfg)
	require.NoError(t, err)
	require.Contains(t, cmd.Args, "-Xmx4G")
	require.Contains(t, cmd.Args, "-Xms1G")
	require.Contains(t, cmd.Args, "-jar")
}

func TestBuildCommandNativeBinary(t *testing.T) {
	cfg := types.ServerConfig{Name: "test", JarPath: "/opt/bedrock/bedrock_server"}
	cmd, err := buildCommand(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, "/opt/bedrock/bedrock_server", cmd.Path)
}

func TestBuildCommandRejectsEmptyConfig(t *testing.T) {
	_, err := buildCommand(context.Background(), types.ServerConfig{Name: "empty"})
	require.Error(t, err)
}
