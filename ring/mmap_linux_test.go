//go:build linux

package ring_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romshark/hwsim-medium/ring"
)

func TestMapAnonymous(t *testing.T) {
	r, err := ring.MapAnonymous(ring.Config{Order: 1, MaxRecord: 1024})
	require.NoError(t, err)

	off, err := r.Rx().Write([]byte("frame"))
	require.NoError(t, err)
	p, _, err := r.Rx().Read(off)
	require.NoError(t, err)
	assert.Equal(t, "frame", string(p))

	require.NoError(t, r.Close())
	_, err = r.Rx().Write([]byte("late"))
	require.ErrorIs(t, err, ring.ErrClosed)
}

func TestMapSharedFile(t *testing.T) {
	conf := ring.Config{Order: 1, MaxRecord: 1024}
	require.NoError(t, conf.ValidateAndSetDefaults())

	path := filepath.Join(t.TempDir(), "phy0")
	require.NoError(t, os.WriteFile(path, make([]byte, conf.Size()), 0o600))

	r, err := ring.Map(path, conf)
	require.NoError(t, err)
	_, err = r.Rx().Write([]byte("shared"))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "shared", string(b[ring.LengthPrefix:ring.LengthPrefix+6]))
}

func TestMapMissingDevice(t *testing.T) {
	_, err := ring.Map(filepath.Join(t.TempDir(), "missing"), ring.Config{})
	require.ErrorIs(t, err, os.ErrNotExist)
}
