package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinicbook/booking-platform/internal/http/handlers"
	httpmiddleware "github.com/clinicbook/booking-platform/internal/http/middleware"
	"github.com/clinicbook/booking-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	Booking        *handlers.BookingHandler
	Directory      *handlers.DirectoryHandler
	MetricsHandler http.Handler
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Booking != nil {
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", cfg.Booking.Reserve)
			r.Get("/{id}", cfg.Booking.Get)
			r.Post("/{id}/confirm", cfg.Booking.Confirm)
			r.Post("/{id}/cancel", cfg.Booking.Cancel)
			r.Post("/{id}/start", cfg.Booking.Start)
			r.Post("/{id}/complete", cfg.Booking.Complete)
		})
		r.Post("/admin/slots/{id}/recount", cfg.Booking.RecountSlot)
	}

	if cfg.Directory != nil {
		r.Route("/doctors", func(r chi.Router) {
			r.Post("/", cfg.Directory.Register)
			r.Get("/{id}", cfg.Directory.Get)
			r.Put("/{id}/profile", cfg.Directory.UpdateProfile)
			r.Post("/{id}/clinics/{clinicID}", cfg.Directory.AddClinic)
			r.Delete("/{id}/clinics/{clinicID}", cfg.Directory.RemoveClinic)
			r.Post("/{id}/slots", cfg.Directory.PublishSlot)
			r.Post("/{id}/reviews", cfg.Directory.SubmitReview)
			if cfg.Booking != nil {
				r.Get("/{id}/availability", cfg.Booking.ListAvailability)
			}
		})
		r.Delete("/slots/{id}", cfg.Directory.ArchiveSlot)
	}

	return r
}
