package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/omerorhan/i18ncache"
)

type server struct {
	client     *i18ncache.Client
	stats      *i18ncache.StatsCollector
	statsToken string
	logger     *log.Logger
}

func (s *server) routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/translations/{locale}", s.getTranslations).Methods(http.MethodGet)
	router.HandleFunc("/translations/{locale}/{key}", s.getTranslation).Methods(http.MethodGet)
	router.HandleFunc("/locales", s.getLocales).Methods(http.MethodGet)
	router.HandleFunc("/refresh", s.refresh).Methods(http.MethodPost)
	router.HandleFunc("/reload", s.reload).Methods(http.MethodPost)
	router.HandleFunc("/stats", s.getStats).Methods(http.MethodGet)
	router.HandleFunc("/health", s.getHealth).Methods(http.MethodGet)
	return router
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}

// getTranslation serves a single key. Scope segments may be passed as
// ?scope=txt.welcome and are joined in front of the key.
func (s *server) getTranslation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	locale, key := vars["locale"], vars["key"]

	var scope []string
	if raw := r.URL.Query().Get("scope"); raw != "" {
		scope = strings.Split(raw, ".")
	}

	value, err := s.client.TScoped(r.Context(), locale, scope, key)
	if err != nil {
		var missing *i18ncache.MissingTranslationError
		if errors.As(err, &missing) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"error":       err.Error(),
				"locale":      missing.Locale,
				"key":         missing.Key,
				"unavailable": missing.Unavailable,
			})
			return
		}
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"locale": locale,
		"key":    strings.Join(append(scope, key), "."),
		"value":  value,
	})
}

func (s *server) getTranslations(w http.ResponseWriter, r *http.Request) {
	locale := mux.Vars(r)["locale"]
	set, err := s.client.Translations(r.Context(), locale)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"locale":       locale,
		"translations": set,
	})
}

func (s *server) getLocales(w http.ResponseWriter, r *http.Request) {
	locales, err := s.client.AvailableLocales(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"locales": locales,
		"loaded":  s.client.Loaded(),
	})
}

func (s *server) refresh(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := s.client.Refresh(r.Context()); err != nil {
		// Failed locales keep serving their previous data.
		s.logger.Warnf("[HTTP] refresh incomplete: %v", err)
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "partial", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *server) reload(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	s.client.Reload()
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *server) getStats(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	snapshot := s.stats.Snapshot()
	snapshot["loaded_locales"] = s.client.Loaded()
	snapshot["lookup_hit_rate"] = s.stats.HitRate(i18ncache.MetricLookupHit, i18ncache.MetricLookupMiss)
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *server) getHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": s.stats.Uptime().Round(time.Second).String(),
		"loaded": len(s.client.Loaded()),
	})
}

func (s *server) authorized(r *http.Request) bool {
	return s.statsToken == "" || r.Header.Get("Authorization") == s.statsToken
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, i18ncache.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Info("[HTTP] request served")
	})
}
