package httpapi

import (
	"net/http"
	"time"

	"github.com/DoyleJ11/starrail-draft-backend/internal/hub"
	"github.com/DoyleJ11/starrail-draft-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Options struct {
	Logger *zap.Logger
	Now    func() time.Time
	WS     ws.Options
}

func SetupRoutes(h *hub.Hub, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.WS.Logger == nil {
		opts.WS.Logger = opts.Logger
	}
	api := &API{hub: h, log: opts.Logger, now: opts.Now}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(opts.Logger))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, opts.WS))
	r.Post("/join", api.Join)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", api.CreateSession)
		r.Route("/{key}", func(r chi.Router) {
			r.Get("/", api.GetSession)
			r.Put("/", api.UpdateSettings)
			r.Delete("/", api.DeleteSession)
			r.Post("/actions", api.SubmitAction)
			r.Post("/tokens/{side}", api.RotateToken)
		})
	})
	return r
}
