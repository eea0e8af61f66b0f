package nativetest

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/bdwind-framerelease/internal/config"
)

func newTestRunner(cfg *config.NativeTestConfig) (*Runner, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewRunner(cfg, WithLogger(logrus.NewEntry(logger))), hook
}

func messages(hook *test.Hook) []string {
	var out []string
	for _, entry := range hook.AllEntries() {
		out = append(out, entry.Message)
	}
	return out
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unit_tests")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestRun_NotConfigured(t *testing.T) {
	for _, library := range []string{"", "replace_me", "replaceLibrary"} {
		runner, hook := newTestRunner(&config.NativeTestConfig{Library: library})
		err := runner.Run(context.Background())
		assert.ErrorIs(t, err, ErrLibraryNotConfigured, library)
		assert.Equal(t, []string{RunnerFailedMessage}, messages(hook))
		assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	}
}

func TestRun_LibraryMissing(t *testing.T) {
	runner, hook := newTestRunner(&config.NativeTestConfig{
		Library: filepath.Join(t.TempDir(), "does_not_exist"),
	})
	err := runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrLibraryLoad)
	assert.Equal(t, RunnerFailedMessage, hook.LastEntry().Message)
	assert.NotContains(t, messages(hook), ">>nativeRunTests")
}

func TestRun_LibraryNotExecutable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unit_tests")
	require.NoError(t, os.WriteFile(path, []byte("not a program"), 0644))

	runner, hook := newTestRunner(&config.NativeTestConfig{Library: path})
	err := runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrLibraryLoad)
	assert.Equal(t, RunnerFailedMessage, hook.LastEntry().Message)
}

func TestRun_Pipe(t *testing.T) {
	filesDir := filepath.Join(t.TempDir(), "files")
	library := writeScript(t, "echo \"[ PASSED ] 2 tests\"\necho \"files=$1\"\n")

	runner, hook := newTestRunner(&config.NativeTestConfig{
		Library:  library,
		FilesDir: filesDir,
		Delay:    time.Millisecond,
	})
	require.NoError(t, runner.Run(context.Background()))

	msgs := messages(hook)
	assert.Contains(t, msgs, "[ PASSED ] 2 tests")
	assert.Contains(t, msgs, "files="+filesDir)
	assert.Equal(t, "<<nativeRunTests", msgs[len(msgs)-1])
	assert.DirExists(t, filesDir)

	start := -1
	for i, m := range msgs {
		if m == ">>nativeRunTests" {
			start = i
		}
	}
	require.GreaterOrEqual(t, start, 0)
	assert.Less(t, start, len(msgs)-1)
}

func TestRun_ExitCode(t *testing.T) {
	library := writeScript(t, "echo failing >&2\nexit 3\n")
	runner, hook := newTestRunner(&config.NativeTestConfig{Library: library, FilesDir: t.TempDir()})

	err := runner.Run(context.Background())
	require.Error(t, err)

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.Contains(t, messages(hook), "failing")
}

func TestRun_CancelledDuringDelay(t *testing.T) {
	library := writeScript(t, "echo ran\n")
	runner, hook := newTestRunner(&config.NativeTestConfig{
		Library:  library,
		FilesDir: t.TempDir(),
		Delay:    time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, runner.Run(ctx), context.Canceled)
	assert.NotContains(t, messages(hook), ">>nativeRunTests")
}

func TestRun_PTY(t *testing.T) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pty not available: %v", err)
	}
	ptmx.Close()
	tty.Close()

	library := writeScript(t, "echo from-pty\n")
	runner, hook := newTestRunner(&config.NativeTestConfig{
		Library:  library,
		FilesDir: t.TempDir(),
		UsePTY:   true,
	})
	require.NoError(t, runner.Run(context.Background()))
	assert.Contains(t, messages(hook), "from-pty")
}

func TestRun_LongOutputLines(t *testing.T) {
	library := writeScript(t, "head -c 70000 /dev/zero | tr '\\0' a; echo\n"+
		"head -c 2000000 /dev/zero | tr '\\0' b; echo\n"+
		"echo done\n")
	runner, hook := newTestRunner(&config.NativeTestConfig{Library: library, FilesDir: t.TempDir()})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after printing long lines")
	}

	msgs := messages(hook)
	found := false
	for _, m := range msgs {
		if len(m) == 70000 {
			found = true
		}
	}
	assert.True(t, found, "70000 byte line should be logged")
	assert.Contains(t, msgs, "Test output line exceeds 1048576 bytes, discarding the rest of the output")
	assert.NotContains(t, msgs, "done")
	assert.Equal(t, "<<nativeRunTests", msgs[len(msgs)-1])
}
