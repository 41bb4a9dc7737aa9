package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
maps:
  - id: loan.Examples
  - id: guids.Tokens
    step_budget: 200
step_budget: 1000
step_timeout: 5s
concurrency: 8
retries: 1
seed: 7
broker:
  url: http://localhost:8100
  port_from: 35000
  port_to: 35100
dataset:
  dir: ./datasets
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Len(t, cfg.Maps, 2)
	assert.Equal(t, 1000, cfg.StepBudget)
	assert.Equal(t, 5*time.Second, cfg.StepTimeout.Std())
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 1, cfg.Retries)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "http://localhost:8100", cfg.Broker.URL)
	assert.Equal(t, "./datasets", cfg.Dataset.Dir)
}

func TestParse_DefaultsApply(t *testing.T) {
	cfg, err := Parse([]byte("maps:\n  - id: only"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.StepBudget, cfg.StepBudget)
	assert.Equal(t, def.StepTimeout, cfg.StepTimeout)
	assert.Equal(t, def.Concurrency, cfg.Concurrency)
	assert.Equal(t, def.Seed, cfg.Seed)
}

func TestParse_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte("maps:\n  - id: m\nstep_timeout: banana"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"no maps":        "step_budget: 10",
		"map without id": "maps:\n  - step_budget: 5",
		"bad concurrency": `
maps:
  - id: m
concurrency: 0
`,
		"negative retries": `
maps:
  - id: m
retries: -1
`,
		"empty port range": `
maps:
  - id: m
broker:
  port_from: 36000
  port_to: 35000
`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg, err := Parse([]byte("maps:\n  - id: m"))
	require.NoError(t, err)

	err = cfg.ApplyOverrides(map[string]any{
		"concurrency":  16,
		"step_budget":  50,
		"step_timeout": "250ms",
	})
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Concurrency)
	assert.Equal(t, 50, cfg.StepBudget)
	assert.Equal(t, 250*time.Millisecond, cfg.StepTimeout.Std())
}

func TestApplyOverrides_InvalidResultRejected(t *testing.T) {
	cfg, err := Parse([]byte("maps:\n  - id: m"))
	require.NoError(t, err)

	err = cfg.ApplyOverrides(map[string]any{"concurrency": 0})
	assert.Error(t, err)
}

func TestRegistrations(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	regs := cfg.Registrations()
	require.Len(t, regs, 2)
	assert.Equal(t, "loan.Examples", regs[0].MapID)
	assert.Equal(t, 1000, regs[0].StepBudget)
	// Per-map override wins.
	assert.Equal(t, 200, regs[1].StepBudget)
}
