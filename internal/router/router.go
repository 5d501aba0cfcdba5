package router

import (
	"net/http"

	"instantin-core-api/internal/handler"
	"instantin-core-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	ProductHandler *handler.ProductHandler
	OrderHandler   *handler.OrderHandler
	DropHandler    *handler.DropHandler
	RaffleHandler  *handler.RaffleHandler
	AdminHandler   *handler.AdminHandler
	RateLimiter    func(http.Handler) http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}

		if cfg.ProductHandler != nil {
			r.Route("/products", func(r chi.Router) {
				r.Post("/", cfg.ProductHandler.Create)
				r.Get("/{product_id}", cfg.ProductHandler.Get)
				r.Delete("/{product_id}", cfg.ProductHandler.Retire)
			})
		}

		if cfg.OrderHandler != nil {
			r.Route("/orders", func(r chi.Router) {
				r.Post("/", cfg.OrderHandler.Create)
				r.Route("/{order_id}", func(r chi.Router) {
					r.Get("/", cfg.OrderHandler.Get)
					r.Post("/submit", cfg.OrderHandler.Submit)
					r.Post("/confirm-payment", cfg.OrderHandler.ConfirmPayment)
					r.Post("/ship", cfg.OrderHandler.Ship)
					r.Post("/deliver", cfg.OrderHandler.Deliver)
					r.Post("/cancel", cfg.OrderHandler.Cancel)
					r.Post("/fail", cfg.OrderHandler.Fail)
					r.Post("/refund", cfg.OrderHandler.Refund)
					r.Post("/flag", cfg.OrderHandler.Flag)
					r.Post("/approve", cfg.OrderHandler.Approve)
					r.Post("/resettle", cfg.OrderHandler.Resettle)
				})
			})
		}

		if cfg.DropHandler != nil {
			r.Route("/drops", func(r chi.Router) {
				r.Post("/", cfg.DropHandler.Create)
				r.Route("/{drop_id}", func(r chi.Router) {
					r.Get("/", cfg.DropHandler.Get)
					r.Post("/schedule", cfg.DropHandler.Schedule)
					r.Post("/activate", cfg.DropHandler.Activate)
					r.Post("/pause", cfg.DropHandler.Pause)
					r.Post("/resume", cfg.DropHandler.Resume)
					r.Post("/end", cfg.DropHandler.End)
					r.Post("/cancel", cfg.DropHandler.Cancel)
					r.Post("/invites", cfg.DropHandler.Invite)
					r.Post("/participants", cfg.DropHandler.Admit)
					r.Delete("/participants/{participant_id}", cfg.DropHandler.RemoveParticipant)
				})
			})
		}

		if cfg.RaffleHandler != nil {
			r.Route("/raffles", func(r chi.Router) {
				// The visit beacon is the one high-volume public endpoint;
				// it alone carries the rate limiter.
				r.Group(func(r chi.Router) {
					if cfg.RateLimiter != nil {
						r.Use(cfg.RateLimiter)
					}
					r.Post("/visits", cfg.RaffleHandler.RecordVisit)
				})

				r.Get("/current", cfg.RaffleHandler.Current)
				r.Post("/bonus", cfg.RaffleHandler.AwardBonus)
				r.Get("/{raffle_id}", cfg.RaffleHandler.Get)
				r.Post("/{raffle_id}/draw", cfg.RaffleHandler.Draw)
				r.Post("/entries/{entry_id}/disqualify", cfg.RaffleHandler.Disqualify)
				r.Post("/entries/{entry_id}/claim", cfg.RaffleHandler.ClaimPrize)
			})
		}

		if cfg.AdminHandler != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Get("/stats", cfg.AdminHandler.GetStats)
			})
		}
	})

	return r
}
