package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	api "github.com/btc-academy/exam-service/internal/api/http"
	auth "github.com/btc-academy/exam-service/internal/auth/middleware"
	"github.com/btc-academy/exam-service/internal/certsync"
	"github.com/btc-academy/exam-service/internal/config"
	"github.com/btc-academy/exam-service/internal/db"
	"github.com/btc-academy/exam-service/internal/exam"
	"github.com/btc-academy/exam-service/internal/rbac"
	syncx "github.com/btc-academy/exam-service/internal/sync"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := exam.NewSQLStore(dbh)
	events := syncx.NewEventRepo(dbh)

	// --- Exam service ---
	opts := []exam.Option{
		exam.WithSampleSize(cfg.SampleSize),
		exam.WithPassRatio(cfg.PassRatio),
		exam.WithEvents(events),
	}
	if cfg.EnableCertSync {
		client := certsync.NewHTTPClient(certsync.HTTPConfig{
			BaseURL:      cfg.ProofServiceURL,
			TokenURL:     cfg.ProofTokenURL,
			ClientID:     cfg.ProofClientID,
			ClientSecret: cfg.ProofClientSecret,
			Timeout:      15 * time.Second,
		})
		opts = append(opts, exam.WithCertSync(certsync.New(certsync.NewSQLStore(dbh), client, nil)))
	}
	svc := exam.NewService(store, opts...)

	// --- Auth ---
	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := cfg.CORSOriginsOffline
	if cfg.Mode == config.ModeOnline {
		origins = cfg.CORSOriginsOnline
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(dbh, authSvc))

	// Protected API (JWT → subject+role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		// Student flow
		pr.With(rbac.Require("exam:start")).
			Post("/exams/{courseID}/attempts", api.StartExamHandler(svc))
		pr.With(rbac.Require("exam:submit")).
			Post("/attempts/{attemptID}/submit", api.SubmitExamHandler(svc))
		pr.With(rbac.Require("exam:view-result")).
			Get("/exams/{courseID}/attempts/latest", api.LatestResultHandler(svc))
		pr.With(rbac.RequireAny("attempt:view-own", "attempt:view-all")).
			Get("/attempts", api.ListAttemptsHandler(svc))

		// Instructor/admin: load the question bank
		pr.With(rbac.Require("questions:import")).
			Post("/questions", api.ImportQuestionsHandler(store))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}
