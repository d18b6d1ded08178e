//go:build darwin

package memmonitor

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfPID(t *testing.T) int {
	t.Helper()
	return os.Getpid()
}

func TestParseRusage(t *testing.T) {
	buf := make([]byte, physFootprintFieldOffset+rusageFieldSize)
	binary.LittleEndian.PutUint64(buf[userTimeFieldOffset:], 1_000_000)
	binary.LittleEndian.PutUint64(buf[systemTimeFieldOffset:], 2_000_000)
	binary.LittleEndian.PutUint64(buf[physFootprintFieldOffset:], 123_456_789)

	r, err := parseRusage(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), r.userNS)
	assert.Equal(t, uint64(2_000_000), r.systemNS)
	assert.Equal(t, uint64(123_456_789), r.physFootprint)
}

func TestParseRusageRejectsShortBuffer(t *testing.T) {
	_, err := parseRusage(make([]byte, physFootprintFieldOffset))
	assert.Error(t, err)
}

func TestExceeded(t *testing.T) {
	assert.True(t, Exceeded(Sample{PhysFootprint: 200}, 100))
	assert.False(t, Exceeded(Sample{PhysFootprint: 50}, 100))
	assert.False(t, Exceeded(Sample{PhysFootprint: 1_000_000}, 0))
}

func TestSampleCPUTimeNS(t *testing.T) {
	assert.Equal(t, uint64(300), Sample{UserNS: 100, SystemNS: 200}.CPUTimeNS())
}

func TestSampleSelf(t *testing.T) {
	p := New(selfPID(t))
	s, err := p.Sample()
	require.NoError(t, err)
	assert.Greater(t, uint64(s.PhysFootprint), uint64(0))
}
