package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romshark/hwsim-medium/config"
	"github.com/romshark/hwsim-medium/hwsim"
	"github.com/romshark/hwsim-medium/ring"
	"github.com/romshark/hwsim-medium/topology"
)

const twoRadios = `
radios:
  - id: 1
    name: ap0
    perm-addr: "42:00:00:00:00:00"
    destroy-on-close: true
  - id: 2
    name: sta0
    perm-addr: "42:00:00:00:01:00"
    hw-addr: "02:00:00:00:01:00"
    channels: 2
links:
  - {src: 1, dst: 2, mutual: true}
`

func TestParseDefaults(t *testing.T) {
	conf, err := config.Parse([]byte(twoRadios))
	require.NoError(t, err)

	require.Len(t, conf.Radios, 2)
	assert.Equal(t, uint32(1), conf.Radios[0].Channels)
	assert.Equal(t, uint32(2), conf.Radios[1].Channels)
	assert.Equal(t, hwsim.MAC{0x42, 0, 0, 0, 0, 0}, conf.Radios[0].PermAddr)
	assert.True(t, conf.Radios[0].DestroyOnClose)

	assert.Equal(t, int32(30), *conf.Medium.SNR)
	assert.Equal(t, int32(-91), *conf.Medium.NoiseFloor)
	assert.Equal(t, 1024, conf.Medium.QueueSize)
	assert.Zero(t, conf.Medium.MaxPPS)
	assert.True(t, *conf.Medium.Isolate)

	assert.True(t, *conf.Ring.Enabled)
	assert.Equal(t, "/dev/phy%d", conf.Ring.Device)
	assert.Equal(t, uint(ring.DefaultOrder), *conf.Ring.Order)
	assert.Equal(t, ring.DefaultRxFraction, conf.Ring.RxFraction)
	assert.Equal(t, ring.DefaultMaxRecord, conf.Ring.MaxRecord)

	assert.Equal(t, "info", conf.Log.Level)
	assert.Equal(t, "console", conf.Log.Format)
	assert.Equal(t, []string{"stderr"}, conf.Log.Outputs)
}

func TestParseExplicit(t *testing.T) {
	conf, err := config.Parse([]byte(twoRadios + `
medium:
  snr: 0
  noise-floor: -80
  queue-size: 16
  max-pps: 500
  isolate: false
ring:
  enabled: false
  device: /tmp/ring%d
  order: 5
  rx-fraction: 0.25
  max-record: 2048
log:
  level: debug
  format: json
  outputs: [stdout, /tmp/medium.log]
  rotation: {enable: true, max-size-mb: 5}
`))
	require.NoError(t, err)
	// An explicit zero SNR is kept.
	assert.Equal(t, int32(0), *conf.Medium.SNR)
	assert.Equal(t, int32(-80), *conf.Medium.NoiseFloor)
	assert.Equal(t, 16, conf.Medium.QueueSize)
	assert.Equal(t, uint64(500), conf.Medium.MaxPPS)
	assert.False(t, *conf.Medium.Isolate)
	assert.False(t, *conf.Ring.Enabled)

	rc := conf.Ring.Config()
	assert.Equal(t, uint(5), rc.Order)
	assert.Equal(t, 0.25, rc.RxFraction)
	assert.Equal(t, 2048, rc.MaxRecord)

	assert.Equal(t, "json", conf.Log.Format)
	assert.True(t, conf.Log.Rotation.Enable)
	assert.Equal(t, 5, conf.Log.Rotation.MaxSizeMB)
}

func TestRegistry(t *testing.T) {
	conf, err := config.Parse([]byte(twoRadios))
	require.NoError(t, err)
	reg, err := conf.Registry()
	require.NoError(t, err)

	sta, ok := reg.Radio(2)
	require.True(t, ok)
	assert.Equal(t, "sta0", sta.Name)
	assert.Equal(t, hwsim.MAC{0x02, 0, 0, 0, 0x01, 0}, sta.HWAddr)

	assert.Equal(t, []topology.Peer{{ID: 2, Addr: sta.HWAddr}}, reg.Peers(1))
	assert.Len(t, reg.Peers(2), 1)
}

func TestValidation(t *testing.T) {
	for _, tt := range []struct {
		name string
		doc  string
		is   error
	}{
		{"no radios", `links: []`, config.ErrInvalid},
		{"missing address", `radios: [{id: 1}]`, config.ErrInvalid},
		{"duplicate id", `
radios:
  - {id: 1, perm-addr: "42:00:00:00:00:00"}
  - {id: 1, perm-addr: "42:00:00:00:01:00"}
`, topology.ErrDuplicateID},
		{"dangling link", `
radios: [{id: 1, perm-addr: "42:00:00:00:00:00"}]
links: [{src: 1, dst: 7}]
`, topology.ErrUnknownRadio},
		{"self link", `
radios: [{id: 1, perm-addr: "42:00:00:00:00:00"}]
links: [{src: 1, dst: 1}]
`, topology.ErrInvalidLink},
		{"ring device without index", `
radios: [{id: 1, perm-addr: "42:00:00:00:00:00"}]
ring: {device: /dev/phy0}
`, config.ErrInvalid},
		{"ring fraction", `
radios: [{id: 1, perm-addr: "42:00:00:00:00:00"}]
ring: {rx-fraction: 1.5}
`, ring.ErrInvalidConfig},
		{"ring order zero", `
radios: [{id: 1, perm-addr: "42:00:00:00:00:00"}]
ring: {order: 0}
`, config.ErrInvalid},
		{"ring record too large for half", `
radios: [{id: 1, perm-addr: "42:00:00:00:00:00"}]
ring: {order: 1, max-record: 1048576}
`, ring.ErrInvalidConfig},
		{"duplicate name", `
radios:
  - {id: 1, name: sta0, perm-addr: "42:00:00:00:00:00"}
  - {id: 2, name: sta0, perm-addr: "42:00:00:00:01:00"}
`, topology.ErrDuplicateName},
		{"name taken by a default", `
radios:
  - {id: 1, name: radio2, perm-addr: "42:00:00:00:00:00"}
  - {id: 2, perm-addr: "42:00:00:00:01:00"}
`, topology.ErrDuplicateName},
		{"negative queue", `
radios: [{id: 1, perm-addr: "42:00:00:00:00:00"}]
medium: {queue-size: -1}
`, config.ErrInvalid},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.doc))
			require.ErrorIs(t, err, tt.is)
		})
	}
}

func TestParseSmallRing(t *testing.T) {
	conf, err := config.Parse([]byte(`
radios: [{id: 1, perm-addr: "42:00:00:00:00:00"}]
ring: {order: 1}
`))
	require.NoError(t, err)
	assert.Equal(t, uint(1), *conf.Ring.Order)
	assert.Equal(t, min(ring.DefaultMaxRecord, os.Getpagesize()-ring.LengthPrefix), conf.Ring.MaxRecord)
}

func TestParseBadAddress(t *testing.T) {
	_, err := config.Parse([]byte(`radios: [{id: 1, perm-addr: "nope"}]`))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medium.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoRadios), 0o644))
	conf, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, conf.Links, 1)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
