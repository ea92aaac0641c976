package apikey

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	v := NewValidator("ETEX", nil)

	tests := []struct {
		name string
		key  string
		want ErrorKind
	}{
		{"valid", "etex.abc123XYZ", ""},
		{"case insensitive prefix", "EtEx.abc", ""},
		{"empty", "", KindMalformed},
		{"no separator", "etexabc", KindMalformed},
		{"empty suffix", "etex.", KindMalformed},
		{"empty prefix", ".abc", KindMalformed},
		{"bad characters", "etex.ab c", KindMalformed},
		{"second dot", "etex.abc.def", KindMalformed},
		{"other region", "east.abcdef", KindRegionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.key)
			assert.Equal(t, tt.want, result.ErrorKind)
			assert.Equal(t, tt.want == "", result.Valid)
			assert.NotEmpty(t, result.Message)
		})
	}
}

func TestValidate_Allowlist(t *testing.T) {
	v := NewValidator("east", []string{"east.known1", " "})

	assert.True(t, v.Validate("east.known1").Valid)

	result := v.Validate("east.unknown")
	assert.Equal(t, KindInvalidKey, result.ErrorKind)
	assert.True(t, errors.Is(result.Err(), ErrInvalidKey))

	// Region is checked before the allowlist
	assert.Equal(t, KindRegionMismatch, v.Validate("west.known1").ErrorKind)
}

func TestValidate_NoCollectorRegion(t *testing.T) {
	v := NewValidator("", nil)
	assert.Equal(t, KindRegionMismatch, v.Validate("east.abc").ErrorKind)
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, Result{Valid: true}.Err())
	assert.ErrorIs(t, Result{ErrorKind: KindMalformed}.Err(), ErrMalformed)
	assert.ErrorIs(t, Result{ErrorKind: KindRegionMismatch}.Err(), ErrRegionMismatch)
}

func TestStats(t *testing.T) {
	v := NewValidator("east", nil)
	v.Validate("east.abc")
	v.Validate("west.abc")
	v.Validate("west.def")
	v.Validate("garbage")

	stats := v.Stats()
	require.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(1), stats.Valid)
	assert.Equal(t, int64(2), stats.Rejected[KindRegionMismatch])
	assert.Equal(t, int64(1), stats.Rejected[KindMalformed])
	assert.Equal(t, "east", stats.CollectorRegion)
	assert.Equal(t, "east.{random_string}", stats.KeyFormat)
	assert.False(t, stats.LastValidation.IsZero())
}

func TestMask(t *testing.T) {
	assert.Equal(t, "east.abcd***", Mask("east.abcdefgh"))
	assert.Equal(t, "east.***", Mask("east.ab"))
	assert.Equal(t, "***", Mask("not-a-key"))
}
