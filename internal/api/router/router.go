package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Clem69B/deglingos-app-sub000/internal/clinic"
	"github.com/Clem69B/deglingos-app-sub000/internal/http/handlers"
	httpmiddleware "github.com/Clem69B/deglingos-app-sub000/internal/http/middleware"
	"github.com/Clem69B/deglingos-app-sub000/internal/team"
	"github.com/Clem69B/deglingos-app-sub000/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes out.
type Config struct {
	Logger         *logging.Logger
	Invoices       *handlers.InvoicesHandler
	Deposits       *handlers.DepositsHandler
	Patients       *handlers.PatientsHandler
	Consultations  *handlers.ConsultationsHandler
	Team           *handlers.TeamHandler
	Sweep          *handlers.SweepHandler
	Edits          *handlers.EditsHandler
	Practice       *clinic.Handler
	ChangeFeed     http.Handler
	MetricsHandler http.Handler
	HealthChecks   map[string]handlers.Pinger

	CORSAllowedOrigins []string
	RateLimitPerMinute int
	RequestTimeout     time.Duration

	// Cognito settings for bearer token validation. AuthDisabled swaps the
	// check for a fixed development administrator.
	CognitoRegion     string
	CognitoUserPoolID string
	CognitoClientID   string
	AuthDisabled      bool
}

// New creates the chi router with every configured route.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", handlers.Health(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	auth := httpmiddleware.DevAuth
	if !cfg.AuthDisabled {
		auth = httpmiddleware.CognitoJWT(httpmiddleware.CognitoConfig{
			Region:     cfg.CognitoRegion,
			UserPoolID: cfg.CognitoUserPoolID,
			ClientID:   cfg.CognitoClientID,
		})
	}

	if cfg.ChangeFeed != nil {
		r.With(auth).Handle("/ws", cfg.ChangeFeed)
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(httpmiddleware.RateLimit(cfg.RateLimitPerMinute))
		if cfg.RequestTimeout > 0 {
			api.Use(middleware.Timeout(cfg.RequestTimeout))
		}
		api.Use(middleware.Compress(5))
		api.Use(auth)

		if cfg.Invoices != nil {
			api.Mount("/invoices", cfg.Invoices.Routes())
		}
		if cfg.Deposits != nil {
			api.Mount("/deposits", cfg.Deposits.Routes())
		}
		if cfg.Patients != nil {
			api.Mount("/patients", cfg.Patients.Routes())
		}
		if cfg.Consultations != nil {
			api.Mount("/consultations", cfg.Consultations.Routes())
		}
		if cfg.Edits != nil {
			api.Mount("/edits", cfg.Edits.Routes())
		}
		if cfg.Practice != nil {
			api.Route("/practice", func(p chi.Router) {
				p.Get("/", cfg.Practice.GetProfile)
				p.With(httpmiddleware.RequireGroup(team.GroupAdmins, team.GroupOsteopaths)).Put("/", cfg.Practice.UpdateProfile)
			})
		}

		api.Group(func(admin chi.Router) {
			admin.Use(httpmiddleware.RequireGroup(team.GroupAdmins))
			if cfg.Team != nil {
				admin.Mount("/team", cfg.Team.Routes())
			}
			if cfg.Sweep != nil {
				admin.Mount("/admin/sweep", cfg.Sweep.Routes())
			}
		})
	})

	return r
}
