package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/docket/internal/http/auth"
	"github.com/MrJamesThe3rd/docket/internal/http/document"
	"github.com/MrJamesThe3rd/docket/internal/http/matching"
	"github.com/MrJamesThe3rd/docket/internal/http/record"
	"github.com/MrJamesThe3rd/docket/internal/http/verification"
)

type Options struct {
	CORSOrigins []string
	JWTSecret   string
	JWTIssuer   string
}

func New(
	opts Options,
	documentsV1 *document.Handler,
	verificationV1 *verification.Handler,
	recordsV1 *record.Handler,
	matchingV1 *matching.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Location"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(opts.JWTSecret, opts.JWTIssuer))

		r.Route("/documents", documentsV1.Routes)

		r.Route("/verification", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			verificationV1.Routes(r)
		})

		r.Route("/expenses", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			recordsV1.ExpenseRoutes(r)
		})

		r.Route("/incomes", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			recordsV1.IncomeRoutes(r)
		})

		r.Route("/categories", matchingV1.Routes)
	})

	return router
}
