package gpio

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSysfs lays out an already exported pin.
func fakeSysfs(t *testing.T, pin int) string {
	root := t.TempDir()
	dir := filepath.Join(root, fmt.Sprintf("gpio%d", pin))
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, f := range []string{"direction", "value"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), nil, 0644))
	}
	for _, f := range []string{"export", "unexport"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, f), nil, 0644))
	}
	return root
}

func TestSysfsWrites(t *testing.T) {
	root := fakeSysfs(t, 7)
	g := NewSysfs(root, 7)

	assert.True(t, g.Exported())
	require.NoError(t, g.Export())

	require.NoError(t, g.SetDirection("out"))
	require.NoError(t, g.SetValue(true))

	dir, err := os.ReadFile(filepath.Join(root, "gpio7", "direction"))
	require.NoError(t, err)
	assert.Equal(t, "out", string(dir))

	val, err := os.ReadFile(filepath.Join(root, "gpio7", "value"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(val))
}

func TestSysfsPulse(t *testing.T) {
	root := fakeSysfs(t, 7)
	g := NewSysfs(root, 7)

	ctime := time.Now()
	require.NoError(t, g.Pulse(5*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(ctime), 10*time.Millisecond)

	dir, err := os.ReadFile(filepath.Join(root, "gpio7", "direction"))
	require.NoError(t, err)
	assert.Equal(t, "in", string(dir))

	unexport, err := os.ReadFile(filepath.Join(root, "unexport"))
	require.NoError(t, err)
	assert.Equal(t, "7", string(unexport))
}

func TestSysfsMissingPin(t *testing.T) {
	g := NewSysfs(t.TempDir(), 3)
	assert.False(t, g.Exported())
	assert.Error(t, g.Export())
	assert.Error(t, g.SetValue(false))
}

func TestPinFromEnv(t *testing.T) {
	t.Setenv(ResetEnv, "17")
	pin, err := PinFromEnv()
	assert.NoError(t, err)
	assert.Equal(t, 17, pin)
}

func TestSysfsPulseFailureUnexports(t *testing.T) {
	root := fakeSysfs(t, 7)
	require.NoError(t, os.Remove(filepath.Join(root, "gpio7", "value")))
	g := NewSysfs(root, 7)

	assert.Error(t, g.Pulse(time.Millisecond))

	unexport, err := os.ReadFile(filepath.Join(root, "unexport"))
	require.NoError(t, err)
	assert.Equal(t, "7", string(unexport))
}
