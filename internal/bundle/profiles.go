package bundle

import (
	"github.com/wolfeidau/assetkit/internal/config"
)

// OptimizeProfile minifies output and precompresses text assets.
func OptimizeProfile(cfg config.Config) Configuration {
	return Configuration{
		Optimization: Optimization{
			Minimize:      true,
			DropConsole:   cfg.Env.Production,
			LegalComments: "none",
		},
		Plugins: []Plugin{
			Compress{Algorithms: []string{"gzip", "zstd"}, MinSize: 1024},
		},
	}
}

// WatchProfile serves the build through the dev server with live reload.
func WatchProfile(cfg config.Config) Configuration {
	return Configuration{
		Devtool: DevtoolInlineSourceMap,
		Plugins: []Plugin{
			HotReload{Endpoint: HotReloadEndpoint},
			NoEmitOnErrors{},
		},
		DevServer: &DevServer{
			Host:           cfg.DevServer.Host,
			Port:           cfg.DevServer.Port,
			Proxy:          cfg.DevURL,
			AllowedOrigins: []string{"*"},
		},
	}
}
