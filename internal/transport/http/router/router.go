package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/transport/http/middleware"
)

type HealthHandler interface {
	Healthz(w http.ResponseWriter, r *http.Request)
	Readyz(w http.ResponseWriter, r *http.Request)
}

type MailHandler interface {
	Connect(w http.ResponseWriter, r *http.Request)
	AttemptResult(w http.ResponseWriter, r *http.Request)
	CancelAttempt(w http.ResponseWriter, r *http.Request)
	Status(w http.ResponseWriter, r *http.Request)
	Disconnect(w http.ResponseWriter, r *http.Request)
	Send(w http.ResponseWriter, r *http.Request)
}

type CallbackHandler interface {
	Callback(w http.ResponseWriter, r *http.Request)
}

type Deps struct {
	Health   HealthHandler
	Mail     MailHandler
	Callback CallbackHandler

	AuthMW func(http.Handler) http.Handler
}

func New(deps Deps) (http.Handler, error) {
	if deps.Health == nil {
		return nil, fmt.Errorf("nil Health handler")
	}
	if deps.Mail == nil {
		return nil, fmt.Errorf("nil Mail handler")
	}
	if deps.Callback == nil {
		return nil, fmt.Errorf("nil Callback handler")
	}
	if deps.AuthMW == nil {
		return nil, fmt.Errorf("nil Auth middleware")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)

	r.Get("/healthz", deps.Health.Healthz)
	r.Get("/readyz", deps.Health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/mail/v1", func(r chi.Router) {
		// Provider redirect lands here; the browser carries no bearer token.
		r.Get("/oauth/callback", deps.Callback.Callback)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMW)

			r.Post("/{country}/{provider}/connect", deps.Mail.Connect)
			r.Get("/connect/attempts/{id}", deps.Mail.AttemptResult)
			r.Post("/connect/attempts/{id}/cancel", deps.Mail.CancelAttempt)

			r.Get("/{country}/{provider}/status", deps.Mail.Status)
			r.Delete("/{country}/{provider}", deps.Mail.Disconnect)
			r.Post("/{country}/{provider}/send", deps.Mail.Send)
		})
	})

	return r, nil
}
