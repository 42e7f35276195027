package http_handlers

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/baechuer/caseflow/services/mailauth-service/internal/application/mailauth"
)

// CallbackHandler terminates the provider redirect. It feeds the outcome into
// the pending attempt and renders a page that posts the result to the opener
// window, pinned to the configured frontend origin.
type CallbackHandler struct {
	svc            *mailauth.Service
	frontendOrigin string
}

func NewCallbackHandler(svc *mailauth.Service, frontendOrigin string) *CallbackHandler {
	return &CallbackHandler{svc: svc, frontendOrigin: frontendOrigin}
}

// Callback handles GET /mail/v1/oauth/callback?state=...&code=...
// Provider errors arrive on the same URL as ?error=...&error_description=...
func (h *CallbackHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := mailauth.CallbackInput{
		State:            q.Get("state"),
		Code:             q.Get("code"),
		ErrorCode:        q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	if in.State == "" || (in.Code == "" && in.ErrorCode == "") {
		h.renderErrorPage(w, "Missing code or state parameter")
		return
	}

	if err := h.svc.DeliverCallback(r.Context(), in); err != nil {
		h.renderErrorPage(w, "Authorization attempt not found or expired")
		return
	}

	if in.ErrorCode != "" {
		h.renderErrorPage(w, in.ErrorCode)
		return
	}
	h.renderSuccessPage(w, in.Code)
}

type callbackPageData struct {
	Origin  string
	Code    string
	Message string
}

// renderSuccessPage posts the authorization code to the opener. Both the
// current message type and the legacy sso_* alias are sent so older frontend
// bundles keep working.
func (h *CallbackHandler) renderSuccessPage(w http.ResponseWriter, code string) {
	data := callbackPageData{Origin: h.frontendOrigin, Code: code}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	var buf bytes.Buffer
	if err := successTemplate.Execute(&buf, data); err != nil {
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	w.Write(buf.Bytes())
}

func (h *CallbackHandler) renderErrorPage(w http.ResponseWriter, message string) {
	data := callbackPageData{Origin: h.frontendOrigin, Message: message}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusBadRequest)

	var buf bytes.Buffer
	if err := errorTemplate.Execute(&buf, data); err != nil {
		http.Error(w, message, http.StatusBadRequest)
		return
	}
	w.Write(buf.Bytes())
}

var successTemplate = template.Must(template.New("callback_success").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Connection Complete</title>
  <style>
    body { font-family: system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #f5f5f5; }
    .container { text-align: center; padding: 2rem; background: white; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
    .spinner { border: 3px solid #f3f3f3; border-top: 3px solid #3498db; border-radius: 50%; width: 30px; height: 30px; animation: spin 1s linear infinite; margin: 0 auto 1rem; }
    @keyframes spin { 0% { transform: rotate(0deg); } 100% { transform: rotate(360deg); } }
  </style>
</head>
<body>
  <div class="container">
    <div class="spinner"></div>
    <p>Completing connection...</p>
  </div>
  <script>
    (function() {
      const origin = '{{.Origin}}';
      const code = '{{.Code}}';

      if (window.opener) {
        window.opener.postMessage({ type: 'oauth_success', code: code }, origin);
        window.opener.postMessage({ type: 'sso_auth_success', code: code }, origin);
        window.close();
      }
    })();
  </script>
</body>
</html>`))

var errorTemplate = template.Must(template.New("callback_error").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Connection Failed</title>
  <style>
    body { font-family: system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #f5f5f5; }
    .container { text-align: center; padding: 2rem; background: white; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); max-width: 400px; }
    .error { color: #e74c3c; }
    button { margin-top: 1rem; padding: 0.5rem 1rem; cursor: pointer; }
  </style>
</head>
<body>
  <div class="container">
    <h2 class="error">Connection Failed</h2>
    <p>{{.Message}}</p>
    <button onclick="window.close()">Close</button>
  </div>
  <script>
    if (window.opener) {
      window.opener.postMessage({ type: 'oauth_error', error: '{{.Message}}' }, '{{.Origin}}');
      window.opener.postMessage({ type: 'sso_auth_error', error: '{{.Message}}' }, '{{.Origin}}');
    }
  </script>
</body>
</html>`))
