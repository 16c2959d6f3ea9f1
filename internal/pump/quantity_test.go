package pump

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want Quantity
	}{
		{"1.5 ml/min", Q(1.5, "ml/min")},
		{".0404 nl/min", Q(0.0404, "nl/min")},
		{"1 ml", Q(1, "ml")},
		{"foo 1.23 mL", Quantity{}},
		{"14.57 mm", Q(14.57, "mm")},
		{"7.5 seconds", Q(7.5, "seconds")},
		{"3 µl", Q(3, "ul")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuantity(tt.in)
			if tt.want == (Quantity{}) {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLeadingQuantity(t *testing.T) {
	low, rest, err := parseLeadingQuantity(".0404 nl/min to 26.0035 ml/min")
	require.NoError(t, err)
	assert.Equal(t, Q(0.0404, "nl/min"), low)
	assert.Equal(t, "to 26.0035 ml/min", rest)

	rest, err = afterWord(rest, "to")
	require.NoError(t, err)
	assert.Equal(t, "26.0035 ml/min", rest)

	_, err = afterWord("nothing here", "to")
	assert.Error(t, err)
}

func TestQuantity_Units(t *testing.T) {
	assert.Equal(t, UnitLitrePerMinute, Q(1, "ul/min").BaseUnit())
	assert.Equal(t, UnitLitre, Q(1, "ml").BaseUnit())
	assert.Equal(t, UnitMetre, Q(1, "mm").BaseUnit())
	assert.Equal(t, "nonsense", Q(1, "nonsense").BaseUnit())

	v, err := Q(1500, "ul").In("ml")
	require.NoError(t, err)
	assert.InDelta(t, 1.5, v, 1e-12)

	_, err = Q(1, "ml").In("ml/min")
	assert.Error(t, err)

	assert.True(t, Q(1, "ml").Equal(Q(1000, "ul")))
	assert.False(t, Q(1, "ml").Equal(Q(1, "ml/min")))
}

func TestQuantity_NormalizeAndString(t *testing.T) {
	tests := []struct {
		in   Quantity
		want string
	}{
		{Q(1, "ml/min"), "1 ml/min"},
		{Q(0.5, "ml"), "500 ul"},
		{Q(0.0015, "l/min"), "1.5 ml/min"},
		{Q(2500, "ul"), "2.5 ml"},
		{Q(1.23456, "ml"), "1.235 ml"},
		{Q(14.57, "mm"), "14.57 mm"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.Normalize().String())
	}
}

func TestTargetTimeFormat(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Second, "30"},
		{time.Hour, "3600"},
		{time.Hour + 30*time.Minute, "01:30:00"},
		{99*time.Hour + time.Minute, "99:01:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTargetTime(tt.in))
	}
}

func TestParseTargetTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		set  bool
	}{
		{"Target time not set", 0, false},
		{"30 seconds", 30 * time.Second, true},
		{"03:00", 3 * time.Minute, true},
		{"01:30:00", 90 * time.Minute, true},
	}
	for _, tt := range tests {
		got, set, err := parseTargetTime(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.set, set, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, _, err := parseTargetTime("soon")
	assert.Error(t, err)
}
