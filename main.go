package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/fiscaliza-acuicola/backend/internal/analysis"
	"github.com/fiscaliza-acuicola/backend/internal/config"
	"github.com/fiscaliza-acuicola/backend/internal/db"
	"github.com/fiscaliza-acuicola/backend/internal/geostore"
	"github.com/fiscaliza-acuicola/backend/internal/middleware"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	response := "Server is up!"
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, response)
}

// HealthHandler reports whether the database answers.
func HealthHandler(gdb *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := gdb.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			log.WithError(err).Warn("health check failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "ok")
	}
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.SetHandler(json.New(os.Stdout))
	} else {
		log.SetHandler(text.New(os.Stdout))
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	setupLogging(cfg)

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	log.Info("connected to database")

	analysis.Init(gdb)

	store := geostore.New(gdb, geostore.Options{LandMaskTable: cfg.LandMaskTable})
	svc := analysis.NewService(store, analysis.ConfigFrom(cfg))
	h := analysis.NewHandler(svc)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Get("/", RootHandler)
	r.Get("/healthz", HealthHandler(gdb))

	r.Mount("/analyses", analysis.SetupRoutes(h,
		middleware.RateLimit(cfg.AnalysisRatePerMinute, cfg.AnalysisRateBurst)))

	log.WithFields(log.Fields{
		"port":        cfg.Port,
		"metric_srid": cfg.MetricSRID,
		"land_mask":   cfg.LandMaskTable,
	}).Info("server listening")

	if err := http.ListenAndServe("0.0.0.0:"+cfg.Port, r); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
