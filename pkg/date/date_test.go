package date

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Date
		wantErr  bool
	}{
		{name: "iso", input: "2025-07-01", expected: New(2025, time.July, 1)},
		{name: "lenient", input: "2025-7-1", expected: New(2025, time.July, 1)},
		{name: "garbage", input: "yesterday", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNewNormalizes(t *testing.T) {
	assert.Equal(t, New(2025, time.February, 1), New(2025, time.January, 32))
	assert.Equal(t, New(2024, time.December, 31), New(2025, time.January, 1).Add(-1))
}

func TestWeekend(t *testing.T) {
	assert.True(t, MustParse("2025-07-05").IsWeekend())  // Saturday
	assert.True(t, MustParse("2025-07-06").IsWeekend())  // Sunday
	assert.False(t, MustParse("2025-07-07").IsWeekend()) // Monday
}

func TestCompare(t *testing.T) {
	a, b := MustParse("2025-07-01"), MustParse("2025-07-02")
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, 1, b.Compare(a))
}

func TestJSON(t *testing.T) {
	d := MustParse("2025-07-01")

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `"2025-07-01"`, string(b))

	var back Date
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, d, back)

	assert.Error(t, json.Unmarshal([]byte(`"not a date"`), &back))
}

func TestZero(t *testing.T) {
	var d Date
	assert.True(t, d.IsZero())
	assert.False(t, MustParse("2025-07-01").IsZero())
}
