package httpapi

import (
	"net/http"
	"time"

	"fundtrace/internal/http/handlers"
	"fundtrace/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Options carries the cross-cutting settings of the HTTP surface.
type Options struct {
	Logger         zerolog.Logger
	JWTSecret      string
	RateLimit      int
	AllowedOrigins []string
	CountryLookup  middleware.CountryLookup
	// StaticDir, when set, serves uploaded evidence under /static.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID(opts.Logger),
		middleware.Recover,
		middleware.Logger,
		middleware.CORS(opts.AllowedOrigins),
		middleware.RateLimit(opts.RateLimit, time.Minute),
		middleware.OriginCountry(opts.CountryLookup),
	)

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)
		r.Get("/openapi.json", app.OpenAPIJSON)
		r.Get("/docs", app.OpenAPIDocs)

		// Public
		r.Post("/donations", app.DonationsCreate)
		r.Get("/donations/{id}", app.DonationGet)
		r.Post("/donations/{id}/payments", app.PaymentsInitiate)
		r.Post("/webhooks/midtrans", app.MidtransWebhook)
		r.Get("/transparency/{id}", app.TransparencyGet)
		r.Get("/projects/{id}/schools/{schoolID}/budget", app.ProjectSchoolBudget)
		r.Get("/projects/{id}/report.zip", app.ProjectReport)
		r.Get("/ngos/{id}/stats", app.NgoStats)
		r.Get("/schools/{id}/stats", app.SchoolStats)
		r.Get("/stats/summary", app.StatsSummary)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(opts.JWTSecret))

			r.Post("/utilizations", app.UtilizationsCreate)
			r.Post("/utilizations/{id}/transparency", app.TransparencyAttach)
			r.Post("/evidence", app.EvidenceUpload)
			r.Get("/donors/{id}/stats", app.DonorStats)

			r.With(middleware.RequireRole(middleware.RoleReviewer)).Group(func(r chi.Router) {
				r.Post("/donations/{id}/settlements", app.PaymentsSettle)
				r.Post("/donations/{id}/refunds", app.DonationsRefund)
				r.Post("/projects/{id}/schools", app.ProjectSchoolsSelect)
				r.Post("/utilizations/{id}/review", app.UtilizationsReview)
			})

			r.With(middleware.RequireRole(middleware.RoleVerifier)).Group(func(r chi.Router) {
				r.Post("/transparency/{id}/verify", app.TransparencyVerify)
				r.Post("/transparency/{id}/publish", app.TransparencyPublish)
			})

			r.With(middleware.RequireRole(middleware.RoleCaseworker)).Group(func(r chi.Router) {
				r.Get("/students/{id}/risk", app.RiskGet)
				r.Post("/students/{id}/risk", app.RiskCompute)
				r.Post("/students/{id}/attendance", app.RiskAttendance)
				r.Post("/students/{id}/family", app.RiskFamily)
				r.Post("/students/{id}/notes", app.RiskNote)
			})
		})
	})

	return r
}
