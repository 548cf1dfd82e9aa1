package deployment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemProcesses_AliveSelf(t *testing.T) {
	alive, err := NewSystemProcesses().Alive(context.Background(), os.Getpid())
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestSystemProcesses_AliveInvalidPID(t *testing.T) {
	alive, err := NewSystemProcesses().Alive(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestSystemProcesses_TerminateMatching(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("requires /proc command lines")
	}

	tmpDir := t.TempDir()
	// A distinctive argument keeps the pattern from matching anything else.
	marker := fmt.Sprintf("%d.%d", 300+os.Getpid()%100, time.Now().UnixNano()%1000)
	pid, err := ExecRunner{}.Spawn(tmpDir, []string{"sleep", marker}, filepath.Join(tmpDir, "sleep.log"))
	require.NoError(t, err)

	procs := &SystemProcesses{Grace: 2 * time.Second}
	ctx := context.Background()

	require.Eventually(t, func() bool {
		alive, _ := procs.Alive(ctx, pid)
		return alive
	}, 2*time.Second, 20*time.Millisecond)

	n, err := procs.Terminate(ctx, "sleep "+marker)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Eventually(t, func() bool {
		alive, _ := procs.Alive(ctx, pid)
		return !alive
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSystemProcesses_TerminateNoMatch(t *testing.T) {
	n, err := NewSystemProcesses().Terminate(context.Background(), "hookdeploy-no-such-process-pattern-7f3a")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSystemProcesses_TerminateEmptyPattern(t *testing.T) {
	_, err := NewSystemProcesses().Terminate(context.Background(), "")
	assert.Error(t, err)
}
