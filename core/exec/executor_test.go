package exec

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor() (*Executor, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	return New(Streams{
		Stdin:  strings.NewReader(""),
		Stdout: stdout,
		Stderr: stderr,
	}), stdout, stderr
}

func TestNew(t *testing.T) {
	e := New(Streams{})
	require.NotNil(t, e)

	streams := e.Streams()
	assert.Equal(t, os.Stdin, streams.Stdin)
	assert.Equal(t, os.Stdout, streams.Stdout)
	assert.Equal(t, os.Stderr, streams.Stderr)
}

func TestExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("echo hello", func(t *testing.T) {
		e, stdout, _ := newTestExecutor()
		status, err := e.Execute(ctx, []string{"echo", "hello"}, Streams{})

		require.NoError(t, err)
		assert.Equal(t, "hello\n", stdout.String())
		assert.Equal(t, Status{Code: 0}, status)
		assert.True(t, status.Success())
	})

	t.Run("reports exit code", func(t *testing.T) {
		for _, code := range []int{0, 1, 42, 255} {
			e, _, _ := newTestExecutor()
			status, err := e.Execute(ctx, []string{"sh", "-c", "exit " + strconv.Itoa(code)}, Streams{})

			require.NoError(t, err)
			assert.Equal(t, code, status.Code)
			assert.False(t, status.Signaled)
			assert.False(t, status.NotFound)
		}
	})

	t.Run("reports signal", func(t *testing.T) {
		e, _, _ := newTestExecutor()
		status, err := e.Execute(ctx, []string{"sh", "-c", "kill -TERM $$"}, Streams{})

		require.NoError(t, err)
		assert.True(t, status.Signaled)
		assert.Equal(t, syscall.SIGTERM, status.Signal)
		assert.False(t, status.Success())
		assert.Equal(t, "signal: terminated", status.String())
	})

	t.Run("unknown program is a status", func(t *testing.T) {
		e, _, stderr := newTestExecutor()
		status, err := e.Execute(ctx, []string{"nonexistent_command_12345"}, Streams{})

		require.NoError(t, err)
		assert.True(t, status.NotFound)
		assert.Equal(t, CodeNotFound, status.Code)
		assert.Equal(t, "myshell: nonexistent_command_12345: command not found\n", stderr.String())
	})

	t.Run("non-executable file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "script")
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0644))

		e, _, stderr := newTestExecutor()
		status, err := e.Execute(ctx, []string{path}, Streams{})

		require.NoError(t, err)
		assert.True(t, status.NotFound)
		assert.Equal(t, CodeNotExecutable, status.Code)
		assert.Contains(t, stderr.String(), "permission denied")
	})

	t.Run("empty command", func(t *testing.T) {
		e, _, _ := newTestExecutor()
		_, err := e.Execute(ctx, nil, Streams{})

		assert.ErrorIs(t, err, ErrEmptyCommand)
	})

	t.Run("call bindings override defaults", func(t *testing.T) {
		e, stdout, _ := newTestExecutor()
		override := &bytes.Buffer{}
		_, err := e.Execute(ctx, []string{"cat"}, Streams{
			Stdin:  strings.NewReader("from stdin"),
			Stdout: override,
		})

		require.NoError(t, err)
		assert.Equal(t, "from stdin", override.String())
		assert.Empty(t, stdout.String())
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		e, _, _ := newTestExecutor()
		status, err := e.Execute(ctx, []string{"sleep", "10"}, Streams{})

		require.NoError(t, err)
		assert.True(t, status.Signaled)
		assert.Equal(t, syscall.SIGKILL, status.Signal)
	})
}

func TestExecutor_ExecuteWithRedirect(t *testing.T) {
	ctx := context.Background()

	t.Run("truncate", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.txt")
		e, stdout, _ := newTestExecutor()

		for _, word := range []string{"first", "second"} {
			status, err := e.ExecuteWithRedirect(ctx, []string{"echo", word}, Redirect{Path: path}, Streams{})
			require.NoError(t, err)
			assert.True(t, status.Success())
		}

		assertFile(t, path, "second\n")
		assert.Empty(t, stdout.String())
	})

	t.Run("append", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.txt")
		require.NoError(t, os.WriteFile(path, []byte("hi\n"), 0644))
		e, _, _ := newTestExecutor()

		for i := 0; i < 2; i++ {
			_, err := e.ExecuteWithRedirect(ctx, []string{"echo", "a"}, Redirect{Path: path, Append: true}, Streams{})
			require.NoError(t, err)
		}

		assertFile(t, path, "hi\na\na\n")
	})

	t.Run("creates with mode 0644", func(t *testing.T) {
		old := syscall.Umask(0)
		defer syscall.Umask(old)

		path := filepath.Join(t.TempDir(), "created.txt")
		e, _, _ := newTestExecutor()
		_, err := e.ExecuteWithRedirect(ctx, []string{"true"}, Redirect{Path: path}, Streams{})
		require.NoError(t, err)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, RedirectPerm, info.Mode().Perm())
	})

	t.Run("open failure spawns nothing", func(t *testing.T) {
		marker := filepath.Join(t.TempDir(), "marker")
		e, _, _ := newTestExecutor()
		_, err := e.ExecuteWithRedirect(ctx,
			[]string{"touch", marker},
			Redirect{Path: "/does/not/exist/out.txt"},
			Streams{})

		assert.ErrorIs(t, err, ErrResourceSetup)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.NoFileExists(t, marker)
	})

	t.Run("exit status is still reported", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out.txt")
		e, _, _ := newTestExecutor()
		status, err := e.ExecuteWithRedirect(ctx, []string{"false"}, Redirect{Path: path}, Streams{})

		require.NoError(t, err)
		assert.Equal(t, 1, status.Code)
	})
}

func TestExecutor_ExecutePipeline(t *testing.T) {
	ctx := context.Background()

	t.Run("printf abc | cat", func(t *testing.T) {
		e, stdout, _ := newTestExecutor()
		status, err := e.ExecutePipeline(ctx, []string{"printf", "abc"}, []string{"cat"}, Streams{})

		require.NoError(t, err)
		assert.Equal(t, "abc", stdout.String())
		assert.True(t, status.Producer.Success())
		assert.True(t, status.Consumer.Success())
	})

	t.Run("passes bytes unaltered", func(t *testing.T) {
		// Large enough to fill the pipe buffer several times.
		const n = 1 << 20
		e, stdout, _ := newTestExecutor()
		_, err := e.ExecutePipeline(ctx,
			[]string{"head", "-c", strconv.Itoa(n), "/dev/zero"},
			[]string{"cat"},
			Streams{})

		require.NoError(t, err)
		assert.Equal(t, n, stdout.Len())
		assert.Equal(t, make([]byte, n), stdout.Bytes())
	})

	t.Run("consumer sees end of stream", func(t *testing.T) {
		e, stdout, _ := newTestExecutor()
		_, err := e.ExecutePipeline(ctx, []string{"echo", "one two three"}, []string{"wc", "-w"}, Streams{})

		require.NoError(t, err)
		assert.Equal(t, "3", strings.TrimSpace(stdout.String()))
	})

	t.Run("reports both statuses", func(t *testing.T) {
		e, _, _ := newTestExecutor()
		status, err := e.ExecutePipeline(ctx,
			[]string{"sh", "-c", "exit 3"},
			[]string{"sh", "-c", "cat >/dev/null; exit 4"},
			Streams{})

		require.NoError(t, err)
		assert.Equal(t, 3, status.Producer.Code)
		assert.Equal(t, 4, status.Consumer.Code)
	})

	t.Run("missing producer still runs consumer", func(t *testing.T) {
		e, stdout, stderr := newTestExecutor()
		status, err := e.ExecutePipeline(ctx,
			[]string{"nonexistent_command_12345"},
			[]string{"sh", "-c", "cat; echo done"},
			Streams{})

		require.NoError(t, err)
		assert.True(t, status.Producer.NotFound)
		assert.Equal(t, 0, status.Consumer.Code)
		assert.Equal(t, "done\n", stdout.String())
		assert.Contains(t, stderr.String(), "command not found")
	})

	t.Run("missing consumer", func(t *testing.T) {
		e, _, _ := newTestExecutor()
		status, err := e.ExecutePipeline(ctx,
			[]string{"echo", "hi"},
			[]string{"nonexistent_command_12345"},
			Streams{})

		require.NoError(t, err)
		assert.True(t, status.Consumer.NotFound)
	})

	t.Run("empty stage", func(t *testing.T) {
		e, _, _ := newTestExecutor()
		_, err := e.ExecutePipeline(ctx, []string{"echo"}, nil, Streams{})

		assert.ErrorIs(t, err, ErrEmptyCommand)
	})

	t.Run("no descriptor leak", func(t *testing.T) {
		before, err := openDescriptors()
		if err != nil {
			t.Skipf("descriptor table not inspectable: %v", err)
		}

		e, _, _ := newTestExecutor()
		for i := 0; i < 10; i++ {
			_, err := e.ExecutePipeline(ctx, []string{"echo", "x"}, []string{"cat"}, Streams{})
			require.NoError(t, err)
		}

		after, err := openDescriptors()
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestExecutor_ReapsChildren(t *testing.T) {
	e, _, _ := newTestExecutor()
	ctx := context.Background()

	producer, _, err := e.start(ctx, []string{"echo", "x"}, Streams{})
	require.NoError(t, err)
	consumer, _, err := e.start(ctx, []string{"true"}, Streams{})
	require.NoError(t, err)

	for _, cmd := range []*exec.Cmd{producer, consumer} {
		_, err := e.wait(ctx, cmd)
		require.NoError(t, err)
		require.NotNil(t, cmd.ProcessState)
		assert.True(t, cmd.ProcessState.Exited())

		// A reaped pid can no longer be waited on.
		_, err = syscall.Wait4(cmd.ProcessState.Pid(), nil, syscall.WNOHANG, nil)
		assert.ErrorIs(t, err, syscall.ECHILD)
	}
}

func TestClassifyStartErr(t *testing.T) {
	ctx := context.Background()

	cases := map[string]struct {
		err        error
		wantStatus Status
		wantErr    error
	}{
		"not found": {
			err:        &exec.Error{Name: "x", Err: exec.ErrNotFound},
			wantStatus: Status{Code: CodeNotFound, NotFound: true},
		},
		"missing path": {
			err:        &os.PathError{Op: "fork/exec", Path: "./x", Err: syscall.ENOENT},
			wantStatus: Status{Code: CodeNotFound, NotFound: true},
		},
		"permission": {
			err:        &os.PathError{Op: "fork/exec", Path: "./x", Err: syscall.EACCES},
			wantStatus: Status{Code: CodeNotExecutable, NotFound: true},
		},
		"bad format": {
			err:        &os.PathError{Op: "fork/exec", Path: "./x", Err: syscall.ENOEXEC},
			wantStatus: Status{Code: CodeNotExecutable, NotFound: true},
		},
		"out of processes": {
			err:     &os.PathError{Op: "fork/exec", Path: "/bin/true", Err: syscall.EAGAIN},
			wantErr: ErrSpawn,
		},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			status, err := classifyStartErr(ctx, tc.err)

			assert.Equal(t, tc.wantStatus, status)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := classifyStartErr(ctx, errors.New("boom"))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
}

// openDescriptors lists the descriptors open in this process.
func openDescriptors() ([]string, error) {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, entry := range entries {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", entry.Name()))
		if err != nil {
			// The descriptor used to read the directory itself.
			continue
		}
		out = append(out, entry.Name()+"->"+target)
	}
	return out, nil
}
