package assets

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var languageTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

// parseTargets splits targets like "es2017" and "chrome58" into the language
// level and engine versions. The first language level wins.
func parseTargets(targets []string) (api.Target, []api.Engine, error) {
	target := api.DefaultTarget
	var engines []api.Engine
	seen := make(map[string]bool)

	for _, raw := range targets {
		t := strings.ToLower(strings.TrimSpace(raw))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true

		if lang, ok := languageTargets[t]; ok {
			if target == api.DefaultTarget {
				target = lang
			}
			continue
		}

		idx := strings.IndexAny(t, "0123456789")
		if idx <= 0 {
			return api.DefaultTarget, nil, fmt.Errorf("unsupported target %q", raw)
		}
		name, ok := engineNames[t[:idx]]
		if !ok {
			return api.DefaultTarget, nil, fmt.Errorf("unsupported engine %q", t[:idx])
		}
		engines = append(engines, api.Engine{Name: name, Version: t[idx:]})
	}

	return target, engines, nil
}
