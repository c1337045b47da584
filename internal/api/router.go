package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/h51assets/h51/infrastructure/middleware"
)

// NewRouter wires every handler in this package onto a gorilla/mux router,
// following the teacher's pattern of a single router constructor per
// service. Every /assets route requires authentication, IP allow-listing,
// and per-account rate limiting; the logging/metrics/recovery middleware
// wrap the whole router the way the teacher's marble services do.
func (s *Server) NewRouter() http.Handler {
	root := mux.NewRouter()

	root.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	assets := root.PathPrefix("/assets").Subrouter()
	assets.Use(s.authMiddleware, s.rateLimitMiddleware, s.apiLogMiddleware)

	assets.HandleFunc("", s.handleList).Methods(http.MethodGet)
	assets.HandleFunc("", s.handleUpload).Methods(http.MethodPut)
	assets.HandleFunc("/analyze", s.handleAnalyzeBulk).Methods(http.MethodPost)
	assets.HandleFunc("/expire", s.handleExpireBulk).Methods(http.MethodPost)
	assets.HandleFunc("/persist", s.handlePersistBulk).Methods(http.MethodPost)
	assets.HandleFunc("/transform", s.handleTransformBulk).Methods(http.MethodPut)

	assets.HandleFunc("/{uid}", s.handleGet).Methods(http.MethodGet)
	assets.HandleFunc("/{uid}/download", s.handleDownload).Methods(http.MethodGet)
	assets.HandleFunc("/{uid}/expire", s.handleExpire).Methods(http.MethodPost)
	assets.HandleFunc("/{uid}/persist", s.handlePersist).Methods(http.MethodPost)
	assets.HandleFunc("/{uid}/analyze", s.handleAnalyze).Methods(http.MethodPost)
	assets.HandleFunc("/{uid}/variations", s.handleTransform).Methods(http.MethodPut)
	assets.HandleFunc("/{uid}/variations/{name}", s.handleDeleteVariation).Methods(http.MethodDelete)
	assets.HandleFunc("/{uid}/variations/{name}/download", s.handleDownloadVariation).Methods(http.MethodGet)

	admin := root.PathPrefix("/admin").Subrouter()
	serviceAuth := middleware.NewServiceAuthMiddleware(middleware.ServiceAuthConfig{
		Secret:          []byte(s.Cfg.Security.ServiceJWTSecret),
		Logger:          s.Logger,
		AllowedServices: []string{"h51ctl"},
	})
	admin.Use(serviceAuth.Handler)
	admin.HandleFunc("/workers/status", s.handleAdminWorkersStatus).Methods(http.MethodGet)
	admin.HandleFunc("/tasks/clear", s.handleAdminClearTasks).Methods(http.MethodPost)
	admin.HandleFunc("/assets/purge", s.handleAdminPurge).Methods(http.MethodPost)
	admin.HandleFunc("/tasks/monitor", s.handleAdminMonitorTasks).Methods(http.MethodGet)

	root.Use(middleware.LoggingMiddleware(s.Logger), middleware.MetricsMiddleware("h51_api", s.Metrics))
	recovery := middleware.NewRecoveryMiddleware(s.Logger)
	bodyLimit := middleware.NewBodyLimitMiddleware(s.Cfg.Server.BodyLimitBytes)

	return bodyLimit.Handler(recovery.Handler(root))
}
