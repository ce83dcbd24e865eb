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

	api "github.com/openclass/quizcore/internal/api/http"
	"github.com/openclass/quizcore/internal/attempt"
	auth "github.com/openclass/quizcore/internal/auth/middleware"
	"github.com/openclass/quizcore/internal/config"
	"github.com/openclass/quizcore/internal/db"
	"github.com/openclass/quizcore/internal/quiz"
)

func main() {
	_ = godotenv.Load()
	cfg := config.FromEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	store := quiz.NewSQLStore(dbh, cfg.DBDriver)

	authSvc := auth.NewAuthService(cfg.AuthSecret)
	registry := attempt.NewRegistry()

	// One-second countdown loop: every live timed attempt ticks here,
	// and attempts that ran out of time are force-submitted with
	// whatever answers they hold. A delivery rejected transiently stays
	// registered and is retried on the next tick; only permanently
	// rejected attempts are dropped.
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for range t.C {
			for _, d := range registry.Tick(context.Background(), store.CreateSubmission) {
				switch {
				case d.Err == nil:
					log.Printf("auto-submit attempt %s -> submission %s", d.AttemptID, d.Submission.ID)
				case quiz.PermanentSubmissionError(d.Err):
					log.Printf("auto-submit attempt %s rejected: %v", d.AttemptID, d.Err)
					registry.Remove(d.AttemptID)
				default:
					log.Printf("auto-submit attempt %s failed, will retry: %v", d.AttemptID, d.Err)
				}
			}
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/auth/login", auth.LoginHandler(authSvc, auth.LoginConfig{
		AdminUser:          cfg.AdminUser,
		AdminPassHash:      cfg.AdminPassHash,
		AllowGuestStudents: cfg.AllowGuestStudents,
	}))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(authSvc))

		pr.Post("/quizzes", api.CreateQuizHandler(store))
		pr.Get("/quizzes/{quizID}", api.GetQuizHandler(store))

		pr.Post("/quizzes/{quizID}/attempts", api.StartAttemptHandler(store, registry))
		pr.Get("/attempts/{attemptID}", api.GetAttemptHandler(registry))
		pr.Post("/attempts/{attemptID}/goto", api.GoToHandler(registry))
		pr.Post("/attempts/{attemptID}/answers", api.AnswerHandler(registry))
		pr.Post("/attempts/{attemptID}/review", api.ToggleReviewHandler(registry))
		pr.Post("/attempts/{attemptID}/submit", api.SubmitAttemptHandler(store, registry))
		pr.Delete("/attempts/{attemptID}", api.AbandonAttemptHandler(registry))

		pr.Get("/submissions", api.ListSubmissionsHandler(store))
		pr.Get("/submissions/{submissionID}", api.GetSubmissionHandler(store))
	})

	log.Printf("gateway listening on %s (db=%s)", cfg.HTTPAddr, cfg.DBDriver)
	if err := http.ListenAndServe(cfg.HTTPAddr, r); err != nil {
		log.Fatal(err)
	}
}
