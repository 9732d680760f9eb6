package rep

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/repcounter/internal/detector"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 90.0, cfg.DownThreshold)
	assert.Equal(t, 160.0, cfg.UpThreshold)
	assert.Equal(t, 0.5, cfg.MinConfidence)
	assert.Equal(t, detector.RightElbow, cfg.Arm.Elbow)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "down equals up", mutate: func(c *Config) { c.DownThreshold = 120; c.UpThreshold = 120 }},
		{name: "down above up", mutate: func(c *Config) { c.DownThreshold = 170 }},
		{name: "negative threshold", mutate: func(c *Config) { c.DownThreshold = -1 }},
		{name: "threshold above 180", mutate: func(c *Config) { c.UpThreshold = 181 }},
		{name: "nan threshold", mutate: func(c *Config) { c.UpThreshold = math.NaN() }},
		{name: "confidence above one", mutate: func(c *Config) { c.MinConfidence = 1.5 }},
		{name: "negative confidence", mutate: func(c *Config) { c.MinConfidence = -0.1 }},
		{name: "unnamed elbow", mutate: func(c *Config) { c.Arm.Elbow = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestArmBySide(t *testing.T) {
	left, err := ArmBySide("left")
	require.NoError(t, err)
	assert.Equal(t, LeftArm(), left)

	right, err := ArmBySide("")
	require.NoError(t, err)
	assert.Equal(t, RightArm(), right)

	_, err = ArmBySide("both")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.Equal(t, "left", left.Side())
	assert.Equal(t, "right", right.Side())
}
