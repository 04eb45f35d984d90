package assets

import (
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTargets(t *testing.T) {
	tests := []struct {
		name    string
		targets []string
		target  api.Target
		engines []api.Engine
	}{
		{
			name:   "none",
			target: api.DefaultTarget,
		},
		{
			name:    "language level",
			targets: []string{"es2017"},
			target:  api.ES2017,
		},
		{
			name:    "first language level wins",
			targets: []string{"ES2020", "es5"},
			target:  api.ES2020,
		},
		{
			name:    "engines",
			targets: []string{"es2017", "chrome58", "safari11.1", "chrome58"},
			target:  api.ES2017,
			engines: []api.Engine{
				{Name: api.EngineChrome, Version: "58"},
				{Name: api.EngineSafari, Version: "11.1"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, engines, err := parseTargets(tt.targets)
			require.NoError(t, err)
			assert.Equal(t, tt.target, target)
			assert.Equal(t, tt.engines, engines)
		})
	}

	t.Run("unknown engine", func(t *testing.T) {
		_, _, err := parseTargets([]string{"netscape4"})
		require.ErrorContains(t, err, "unsupported engine")
	})

	t.Run("unknown target", func(t *testing.T) {
		_, _, err := parseTargets([]string{"defaults"})
		require.ErrorContains(t, err, "unsupported target")
	})
}
