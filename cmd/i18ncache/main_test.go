package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omerorhan/i18ncache/internal/config"
)

func newTestOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/en.json":
			w.Header().Set("ETag", `"en-1"`)
			w.Write([]byte(`{"txt": {"welcome": {"title": "Welcome"}}, "count": 3}`))
		case "/locales.json":
			w.Write([]byte(`{"locales": ["en", "de"]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, originURL string) config.Config {
	t.Helper()
	var cfg config.Config
	cfg.Server.Port = "0"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Origin.BaseURL = originURL
	cfg.Origin.PathFormat = "/%s.json"
	cfg.Origin.LocalesPath = "/locales.json"
	cfg.Origin.LocalesField = "locale"
	cfg.Origin.LocalesRoot = []string{"locales"}
	cfg.Origin.OpenTimeout = time.Second
	cfg.Origin.ReadTimeout = time.Second
	cfg.Cache.PollingInterval = time.Minute
	cfg.Cache.MemoryCacheSize = 4
	cfg.Store.Backend = config.StoreMemory
	cfg.Store.KeyPrefix = "test:"
	cfg.Store.RecordTTL = time.Hour
	cfg.Logging.Level = "info"
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	logger, err := newLogger(cfg)
	require.NoError(t, err)
	srv, client, err := newServer(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { client.Stop() })
	return srv.Handler
}

func get(t *testing.T, handler http.Handler, target string, headers ...string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var body map[string]interface{}
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec.Code, body
}

func TestServer_Translation(t *testing.T) {
	handler := newTestServer(t, testConfig(t, newTestOrigin(t).URL))

	code, body := get(t, handler, "/translations/en/txt.welcome.title")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Welcome", body["value"])

	code, body = get(t, handler, "/translations/en/title?scope=txt.welcome")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Welcome", body["value"])
	assert.Equal(t, "txt.welcome.title", body["key"])

	code, body = get(t, handler, "/translations/en/count")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "3", body["value"])

	code, body = get(t, handler, "/translations/en/missing")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["unavailable"])

	code, body = get(t, handler, "/translations/fr/txt.welcome.title")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, true, body["unavailable"])
}

func TestServer_TranslationsAndLocales(t *testing.T) {
	handler := newTestServer(t, testConfig(t, newTestOrigin(t).URL))

	code, body := get(t, handler, "/translations/en")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]interface{}{"txt.welcome.title": "Welcome", "count": "3"}, body["translations"])

	code, body = get(t, handler, "/locales")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []interface{}{"de", "en"}, body["locales"])
	assert.Equal(t, []interface{}{"en"}, body["loaded"])
}

func TestServer_StatsRequireToken(t *testing.T) {
	cfg := testConfig(t, newTestOrigin(t).URL)
	cfg.Server.StatsToken = "secret"
	handler := newTestServer(t, cfg)

	get(t, handler, "/translations/en/count")

	code, _ := get(t, handler, "/stats")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body := get(t, handler, "/stats", "Authorization", "secret")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 100.0, body["lookup_hit_rate"])
	assert.Equal(t, []interface{}{"en"}, body["loaded_locales"])
}

func TestServer_RefreshAndReload(t *testing.T) {
	handler := newTestServer(t, testConfig(t, newTestOrigin(t).URL))
	get(t, handler, "/translations/en/count")

	for _, path := range []string{"/refresh", "/reload"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	_, body := get(t, handler, "/health")
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 0.0, body["loaded"])
}

func TestNewStore(t *testing.T) {
	cfg := testConfig(t, "http://origin.invalid")

	cfg.Store.Backend = config.StoreNone
	store, err := newStore(cfg)
	require.NoError(t, err)
	assert.Nil(t, store)

	cfg.Store.Backend = config.StoreBolt
	cfg.Store.BoltPath = filepath.Join(t.TempDir(), "cache.db")
	store, err = newStore(cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	require.NoError(t, store.Close())

	cfg.Store.Backend = "memcached"
	_, err = newStore(cfg)
	require.Error(t, err)
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := testConfig(t, "http://origin.invalid")
	cfg.Logging.Level = "chatty"
	_, err := newLogger(cfg)
	require.Error(t, err)

	cfg.Logging.Level = "debug"
	cfg.Logging.JSON = true
	logger, err := newLogger(cfg)
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, logger.GetLevel())
}
