package devserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/assetkit/internal/bundle"
)

type staticManifest []byte

func (m staticManifest) Manifest() []byte { return m }

func echoServer(t *testing.T, name string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, name+" "+r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func watchConfiguration(proxy string) *bundle.Configuration {
	return &bundle.Configuration{
		Output: bundle.Output{PublicPath: "/app/themes/sage/dist/"},
		Plugins: []bundle.Plugin{
			bundle.HotReload{Endpoint: "/esbuild"},
			bundle.AssetsManifest{Output: bundle.ManifestOutput},
		},
		DevServer: &bundle.DevServer{
			Host:           "localhost",
			Port:           3000,
			Proxy:          proxy,
			AllowedOrigins: []string{"*"},
			Headers:        map[string]string{"X-Served-By": "assetkit"},
		},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNew(t *testing.T) {
	t.Run("requires a dev server", func(t *testing.T) {
		_, err := New(&bundle.Configuration{}, zerolog.Nop())
		require.ErrorIs(t, err, ErrNoDevServer)
	})

	t.Run("rejects relative proxy url", func(t *testing.T) {
		_, err := New(watchConfiguration("example.test"), zerolog.Nop())
		require.ErrorContains(t, err, "scheme and host")
	})

	t.Run("address", func(t *testing.T) {
		s, err := New(watchConfiguration(""), zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, "localhost:3000", s.Addr())
	})
}

func TestServer_routing(t *testing.T) {
	esbuild := echoServer(t, "esbuild")
	app := echoServer(t, "app")

	s, err := New(watchConfiguration(app.URL), zerolog.Nop())
	require.NoError(t, err)
	h := s.Handler()

	t.Run("no target yet", func(t *testing.T) {
		rec := get(t, h, "/app/themes/sage/dist/scripts/app.js")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	require.NoError(t, s.SetTarget(strings.TrimPrefix(esbuild.URL, "http://"), staticManifest(`{"scripts/app.js":"scripts/app.js"}`)))

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{name: "assets are served by esbuild", path: "/app/themes/sage/dist/scripts/app.js", expected: "esbuild /scripts/app.js"},
		{name: "live reload endpoint", path: "/esbuild", expected: "esbuild /esbuild"},
		{name: "pages go to the app", path: "/about/", expected: "app /about/"},
		{name: "manifest from memory", path: "/app/themes/sage/dist/assets.json", expected: `{"scripts/app.js":"scripts/app.js"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.path)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.expected, rec.Body.String())
			assert.Equal(t, "assetkit", rec.Header().Get("X-Served-By"))
		})
	}
}

func TestServer_withoutProxy(t *testing.T) {
	esbuild := echoServer(t, "esbuild")

	s, err := New(watchConfiguration(""), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SetTarget(strings.TrimPrefix(esbuild.URL, "http://"), staticManifest(nil)))

	rec := get(t, s.Handler(), "/index.html")
	assert.Equal(t, "esbuild /index.html", rec.Body.String())

	rec = get(t, s.Handler(), "/app/themes/sage/dist/assets.json")
	assert.Equal(t, http.StatusNotFound, rec.Code, "manifest not built yet")
}

func TestServer_targetSwap(t *testing.T) {
	first := echoServer(t, "first")
	second := echoServer(t, "second")

	s, err := New(watchConfiguration(""), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, s.SetTarget(strings.TrimPrefix(first.URL, "http://"), nil))
	assert.Equal(t, "first /esbuild", get(t, s.Handler(), "/esbuild").Body.String())

	require.NoError(t, s.SetTarget(strings.TrimPrefix(second.URL, "http://"), nil))
	assert.Equal(t, "second /esbuild", get(t, s.Handler(), "/esbuild").Body.String())
}

func TestServer_cors(t *testing.T) {
	esbuild := echoServer(t, "esbuild")

	s, err := New(watchConfiguration(""), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SetTarget(strings.TrimPrefix(esbuild.URL, "http://"), nil))

	req := httptest.NewRequest(http.MethodGet, "/app/themes/sage/dist/styles/app.css", nil)
	req.Header.Set("Origin", "http://example.test")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_badGateway(t *testing.T) {
	esbuild := echoServer(t, "esbuild")
	addr := strings.TrimPrefix(esbuild.URL, "http://")
	esbuild.Close()

	s, err := New(watchConfiguration(""), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.SetTarget(addr, nil))

	assert.Equal(t, http.StatusBadGateway, get(t, s.Handler(), "/esbuild").Code)
}

func TestServer_WaitForUpstream(t *testing.T) {
	t.Run("no upstream", func(t *testing.T) {
		s, err := New(watchConfiguration(""), zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, s.WaitForUpstream(context.Background()))
	})

	t.Run("available", func(t *testing.T) {
		app := echoServer(t, "app")
		s, err := New(watchConfiguration(app.URL), zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, s.WaitForUpstream(context.Background()))
	})

	t.Run("gives up", func(t *testing.T) {
		app := echoServer(t, "app")
		url := app.URL
		app.Close()

		s, err := New(watchConfiguration(url), zerolog.Nop(), WithWaitTimeout(200*time.Millisecond))
		require.NoError(t, err)
		require.ErrorContains(t, s.WaitForUpstream(context.Background()), "unavailable")
	})
}

func TestNormalizePublicPath(t *testing.T) {
	tests := map[string]string{
		"":                              "/",
		"/":                             "/",
		"dist":                          "/dist/",
		"/app/themes/sage/dist/":        "/app/themes/sage/dist/",
		"http://example.test/wp/dist/":  "/wp/dist/",
		"https://cdn.example.test/dist": "/dist/",
	}

	for input, expected := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, expected, normalizePublicPath(input))
		})
	}
}
