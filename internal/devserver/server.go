package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetkit/internal/bundle"
	"github.com/wolfeidau/assetkit/internal/logger"
)

var (
	ErrNoDevServer = errors.New("configuration has no dev server")
	ErrNoTarget    = errors.New("esbuild server not ready")
)

// ManifestSource provides the current in-memory asset manifest.
type ManifestSource interface {
	Manifest() []byte
}

type target struct {
	proxy    *httputil.ReverseProxy
	manifest ManifestSource
}

// Server fronts the esbuild server and the proxied application during watch.
type Server struct {
	addr         string
	publicPath   string
	endpoint     string
	manifestPath string
	headers      map[string]string
	logger       zerolog.Logger

	upstream    *url.URL
	upstreamRP  *httputil.ReverseProxy
	target      atomic.Pointer[target]
	handler     http.Handler
	client      *http.Client
	waitTimeout time.Duration
}

type Option func(*Server)

// WithWaitTimeout bounds how long WaitForUpstream retries.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.waitTimeout = d
	}
}

// New creates the dev server for the watch configuration.
func New(conf *bundle.Configuration, log zerolog.Logger, opts ...Option) (*Server, error) {
	if conf.DevServer == nil {
		return nil, ErrNoDevServer
	}
	dev := conf.DevServer

	s := &Server{
		addr:        net.JoinHostPort(dev.Host, strconv.Itoa(dev.Port)),
		publicPath:  normalizePublicPath(conf.Output.PublicPath),
		endpoint:    bundle.HotReloadEndpoint,
		headers:     dev.Headers,
		logger:      log,
		client:      &http.Client{Timeout: 5 * time.Second},
		waitTimeout: 30 * time.Second,
	}
	if hot, ok := bundle.Find[bundle.HotReload](conf.Plugins); ok && hot.Endpoint != "" {
		s.endpoint = hot.Endpoint
	}
	if manifest, ok := bundle.Find[bundle.AssetsManifest](conf.Plugins); ok {
		output := manifest.Output
		if output == "" {
			output = bundle.ManifestOutput
		}
		s.manifestPath = s.publicPath + output
	}

	if dev.Proxy != "" {
		u, err := url.Parse(dev.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", dev.Proxy, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid proxy url %q: scheme and host are required", dev.Proxy)
		}
		s.upstream = u
		s.upstreamRP = newProxy(u, log)
	}

	for _, opt := range opts {
		opt(s)
	}

	middleware := cors.New(cors.Options{
		AllowedOrigins: dev.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	s.handler = logger.Requests(log)(middleware.Handler(http.HandlerFunc(s.route)))

	return s, nil
}

// Addr is the address the dev server listens on.
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the dev server handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetTarget points the server at a running esbuild server, replacing any
// previous one.
func (s *Server) SetTarget(esbuildAddr string, manifest ManifestSource) error {
	u, err := url.Parse("http://" + esbuildAddr)
	if err != nil {
		return fmt.Errorf("invalid esbuild address %q: %w", esbuildAddr, err)
	}
	s.target.Store(&target{proxy: newProxy(u, s.logger), manifest: manifest})
	s.logger.Debug().Str("esbuild", esbuildAddr).Msg("Dev server target updated")
	return nil
}

// WaitForUpstream blocks until the proxied application answers, retrying
// with exponential backoff. Any HTTP response counts as available.
func (s *Server) WaitForUpstream(ctx context.Context) error {
	if s.upstream == nil {
		return nil
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.upstream.String(), nil)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return struct{}{}, err
		}
		_ = resp.Body.Close()
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(s.waitTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn().Err(err).Dur("retry_in", next).Str("upstream", s.upstream.String()).Msg("Waiting for upstream")
		}),
	)
	if err != nil {
		return fmt.Errorf("upstream %s unavailable: %w", s.upstream, err)
	}
	return nil
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	for name, value := range s.headers {
		w.Header().Set(name, value)
	}

	path := r.URL.Path
	switch {
	case s.manifestPath != "" && path == s.manifestPath:
		s.serveManifest(w, r)
	case path == s.endpoint:
		s.serveEsbuild(w, r, path)
	case strings.HasPrefix(path, s.publicPath) && (s.publicPath != "/" || s.upstreamRP == nil):
		s.serveEsbuild(w, r, "/"+strings.TrimPrefix(path, s.publicPath))
	case s.upstreamRP != nil:
		s.upstreamRP.ServeHTTP(w, r)
	default:
		s.serveEsbuild(w, r, path)
	}
}

func (s *Server) serveManifest(w http.ResponseWriter, r *http.Request) {
	t := s.target.Load()
	if t == nil || t.manifest == nil {
		http.Error(w, ErrNoTarget.Error(), http.StatusServiceUnavailable)
		return
	}
	doc := t.manifest.Manifest()
	if doc == nil {
		http.Error(w, "manifest not built yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(doc)
}

func (s *Server) serveEsbuild(w http.ResponseWriter, r *http.Request, path string) {
	t := s.target.Load()
	if t == nil {
		http.Error(w, ErrNoTarget.Error(), http.StatusServiceUnavailable)
		return
	}
	r2 := r.Clone(r.Context())
	r2.URL.Path = path
	r2.URL.RawPath = ""
	t.proxy.ServeHTTP(w, r2)
}

func newProxy(u *url.URL, log zerolog.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
		},
		// server-sent events must reach the browser unbuffered
		FlushInterval: -1,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error().Err(err).Str("upstream", u.Host).Str("path", r.URL.Path).Msg("Proxy request failed")
			w.WriteHeader(http.StatusBadGateway)
		},
	}
}

// normalizePublicPath reduces a public path, possibly an absolute URL, to a
// path with leading and trailing slashes.
func normalizePublicPath(publicPath string) string {
	if u, err := url.Parse(publicPath); err == nil && u.Host != "" {
		publicPath = u.Path
	}
	if !strings.HasPrefix(publicPath, "/") {
		publicPath = "/" + publicPath
	}
	if !strings.HasSuffix(publicPath, "/") {
		publicPath += "/"
	}
	return publicPath
}
