package grading

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScale_Letter(t *testing.T) {
	scale, err := NewScale("")
	require.NoError(t, err)

	tests := []struct {
		percentage float64
		want       string
	}{
		{100, "A"},
		{93, "A"},
		{92.9, "A-"},
		{90, "A-"},
		{85, "B"},
		{60, "D-"},
		{59.99, LetterF},
		{0, LetterF},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scale.Letter(tt.percentage), "Letter(%v)", tt.percentage)
	}
}

func TestScale_GPA(t *testing.T) {
	scale, err := NewScale("")
	require.NoError(t, err)

	assert.Equal(t, float64(0), scale.GPA(nil))
	assert.Equal(t, 4.0, scale.GPA([]string{"A"}))
	// (4.0 + 3.7 + 3.3) / 3 = 3.666..
	assert.InDelta(t, 11.0/3, scale.GPA([]string{"A", "A-", "B+"}), 1e-9)
	assert.Equal(t, 2.0, scale.GPA([]string{"A", LetterF}))
	assert.Equal(t, float64(0), scale.Points("Z"))
}

func TestNewScale_override(t *testing.T) {
	scale, err := NewScale(" a=95 , A-=91 ")
	require.NoError(t, err)
	assert.Equal(t, "A-", scale.Letter(94))
	assert.Equal(t, "A", scale.Letter(95))
	assert.Equal(t, "B+", scale.Letter(90))

	th := scale.Thresholds()
	for i := 1; i < len(th); i++ {
		assert.GreaterOrEqual(t, th[i-1].Min, th[i].Min)
	}
	// the copy cannot alter the scale
	th[0].Min = 0
	assert.Equal(t, "B+", scale.Letter(90))
	assert.Equal(t, float64(93), DefaultThresholds[0].Min)
}

func TestNewScale_errors(t *testing.T) {
	for _, raw := range []string{"A", "A=lol", "A=101", "A=-1", "E=50"} {
		_, err := NewScale(raw)
		assert.Error(t, err, raw)
	}
}

func TestReport_MarshalJSON(t *testing.T) {
	scale, err := NewScale("")
	require.NoError(t, err)

	b, err := json.Marshal(Report{Entries: []ReportEntry{}, GPA: scale.GPA([]string{"A", "A-", "B+"})})
	require.NoError(t, err)
	assert.JSONEq(t, `{"entries": [], "gpa": 3.67}`, string(b))
}
