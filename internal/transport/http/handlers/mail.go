package http_handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/application/mailauth"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/transport/http/dto"
	"github.com/baechuer/caseflow/services/mailauth-service/internal/transport/http/response"
)

// MailHandler exposes the connect / status / send surface for one identity
// key per route: /{country}/{provider}/...
type MailHandler struct {
	svc *mailauth.Service
}

func NewMailHandler(svc *mailauth.Service) *MailHandler {
	return &MailHandler{svc: svc}
}

// Connect handles POST /mail/v1/{country}/{provider}/connect.
// It starts an authorization attempt and returns the popup URL plus the
// attempt id the UI polls and cancels with.
func (h *MailHandler) Connect(w http.ResponseWriter, r *http.Request) {
	country := chi.URLParam(r, "country")
	provider := chi.URLParam(r, "provider")

	start, err := h.svc.StartConnect(r.Context(), country, provider)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	response.Created(w, map[string]string{
		"attempt_id": start.AttemptID,
		"auth_url":   start.AuthURL,
	})
}

// AttemptResult handles GET /mail/v1/connect/attempts/{id}.
// By default it long-polls until the attempt reaches a terminal state; with
// ?wait=0 it returns the current flow state immediately.
func (h *MailHandler) AttemptResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if wait := r.URL.Query().Get("wait"); wait == "0" || wait == "false" {
		state, err := h.svc.AttemptState(id)
		if err != nil {
			response.WriteError(w, r, err)
			return
		}
		response.OK(w, map[string]string{"state": string(state)})
		return
	}

	result, err := h.svc.AwaitResult(r.Context(), id)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	response.OK(w, map[string]any{
		"state":     "succeeded",
		"country":   result.Key.Country,
		"provider":  string(result.Key.Provider),
		"user_info": result.UserInfo,
	})
}

// CancelAttempt handles POST /mail/v1/connect/attempts/{id}/cancel.
// The body is optional; reason "blocked" means the browser refused to open
// the popup.
func (h *MailHandler) CancelAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.CancelAttemptRequest
	if r.ContentLength != 0 {
		if err := response.DecodeJSON(r, &req); err != nil {
			response.WriteError(w, r, err)
			return
		}
		if err := req.Validate(); err != nil {
			response.WriteError(w, r, err)
			return
		}
	}

	if err := h.svc.CancelAttempt(r.Context(), id, req.Reason); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.NoContent(w)
}

// Status handles GET /mail/v1/{country}/{provider}/status.
func (h *MailHandler) Status(w http.ResponseWriter, r *http.Request) {
	country := chi.URLParam(r, "country")
	provider := chi.URLParam(r, "provider")

	status, err := h.svc.ConnectionStatus(r.Context(), country, provider)
	if err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, status)
}

// Disconnect handles DELETE /mail/v1/{country}/{provider}.
func (h *MailHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	country := chi.URLParam(r, "country")
	provider := chi.URLParam(r, "provider")

	if err := h.svc.Disconnect(r.Context(), country, provider); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.NoContent(w)
}

// Send handles POST /mail/v1/{country}/{provider}/send.
func (h *MailHandler) Send(w http.ResponseWriter, r *http.Request) {
	country := chi.URLParam(r, "country")
	provider := chi.URLParam(r, "provider")

	var req dto.SendMailRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.WriteError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		response.WriteError(w, r, err)
		return
	}

	msg, err := req.ToMessage()
	if err != nil {
		response.WriteError(w, r, err)
		return
	}

	if err := h.svc.SendMail(r.Context(), country, provider, msg); err != nil {
		response.WriteError(w, r, err)
		return
	}
	response.OK(w, map[string]bool{"sent": true})
}
