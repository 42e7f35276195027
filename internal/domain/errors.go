package domain

import (
	"errors"
	"fmt"
)

// ErrKind is used to map domain errors to HTTP status codes consistently.
type ErrKind string

const (
	KindValidation     ErrKind = "validation"     // 400
	KindAuth           ErrKind = "auth"           // 401
	KindForbidden      ErrKind = "forbidden"      // 403
	KindNotFound       ErrKind = "not_found"      // 404
	KindConflict       ErrKind = "conflict"       // 409
	KindGateway        ErrKind = "gateway"        // 502
	KindInfrastructure ErrKind = "infrastructure" // 503
	KindInternal       ErrKind = "internal"       // 500
)

// Error is a structured domain error.
// - Kind: high-level category for HTTP mapping
// - Code: stable machine code (do not change casually)
// - Message: safe summary for clients (avoid leaking sensitive details)
// - Meta: optional details (field, reason, etc.)
// - Cause: wrapped internal error for logging/diagnostics
type Error struct {
	Kind    ErrKind
	Code    string
	Message string
	Meta    map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind ErrKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind ErrKind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

func WithMeta(err *Error, meta map[string]string) *Error {
	err.Meta = meta
	return err
}

func Is(err error, code string) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// ----------------------
// Configuration (400/500)
// ----------------------

// Bad or placeholder client id. Fatal to the attempt and user-visible,
// so the message names the provider.
func ErrOAuthNotConfigured(provider string) *Error {
	return WithMeta(New(KindValidation, "oauth_not_configured", "oauth client id is missing or a placeholder"), map[string]string{
		"provider": provider,
	})
}

func ErrUnsupportedProvider(provider string) *Error {
	return WithMeta(New(KindValidation, "unsupported_provider", "unsupported mail provider"), map[string]string{
		"provider": provider,
	})
}

// ----------------------
// Popup flow (4xx)
// ----------------------

// Environment denied opening the popup. User-actionable.
func ErrPopupBlocked() *Error {
	return New(KindValidation, "popup_blocked", "popup was blocked by the browser")
}

// User closed the popup before authorization finished.
func ErrAuthCancelled() *Error {
	return New(KindAuth, "auth_cancelled", "authentication cancelled")
}

// No terminal event arrived within the flow window.
func ErrAuthTimeout() *Error {
	return New(KindAuth, "auth_timeout", "authentication timed out")
}

// Exchange attempted without a live PKCE challenge for the attempt.
func ErrMissingChallenge() *Error {
	return New(KindAuth, "missing_challenge", "no pending authorization attempt for this exchange")
}

func ErrAttemptNotFound() *Error {
	return New(KindNotFound, "attempt_not_found", "authorization attempt not found or expired")
}

// ----------------------
// Token endpoint failures
// ----------------------

// Expired or already-used authorization code. User should retry the flow.
func ErrGrantInvalid(cause error) *Error {
	return Wrap(KindAuth, "grant_invalid", "authorization code is invalid or expired", cause)
}

// Deployment misconfiguration: redirect_uri sent to the token endpoint does
// not match the one registered with the provider. Not user-fixable.
func ErrRedirectMismatch(cause error) *Error {
	return Wrap(KindInternal, "redirect_mismatch", "redirect uri does not match the registered value", cause)
}

// Generic 401-class failure at the provider.
func ErrAuthFailed(cause error) *Error {
	return Wrap(KindAuth, "auth_failed", "provider rejected the credentials", cause)
}

// Transport-level failure talking to the provider. Retryable by the user.
func ErrNetwork(cause error) *Error {
	return Wrap(KindGateway, "network_error", "provider request failed", cause)
}

// Silent refresh denied. Stored tokens are cleared; caller must re-authenticate.
func ErrRefreshFailed(cause error) *Error {
	return Wrap(KindAuth, "refresh_failed", "token refresh was denied", cause)
}

// No usable token for the identity. Caller must run the connect flow again.
// cause carries the provider rejection when one triggered the demand; nil
// when the tokens are simply absent or expired.
func ErrReauthRequired(cause error) *Error {
	return Wrap(KindAuth, "reauth_required", "no valid mail authorization for this identity", cause)
}

// ----------------------
// Request-level errors
// ----------------------

func ErrInvalidJSON(cause error) *Error {
	return Wrap(KindValidation, "invalid_json", "invalid JSON body", cause)
}

func ErrMissingField(field string) *Error {
	return WithMeta(New(KindValidation, "missing_field", "missing required field"), map[string]string{
		"field": field,
	})
}

func ErrInvalidField(field, reason string) *Error {
	return WithMeta(New(KindValidation, "invalid_field", "invalid field"), map[string]string{
		"field":  field,
		"reason": reason,
	})
}

func ErrTokenMissing() *Error {
	return New(KindAuth, "token_missing", "no token provided")
}

func ErrTokenInvalid() *Error {
	return New(KindAuth, "token_invalid", "invalid token")
}

func ErrTokenExpired() *Error {
	return New(KindAuth, "token_expired", "token is expired")
}

// ----------------------
// Infrastructure / internal (5xx)
// ----------------------

func ErrStoreUnavailable(cause error) *Error {
	return Wrap(KindInfrastructure, "store_unavailable", "token store unavailable", cause)
}

func ErrRandomFailed(cause error) *Error {
	return Wrap(KindInternal, "random_failed", "random generation failed", cause)
}

func ErrInternal(cause error) *Error {
	return Wrap(KindInternal, "internal_error", "internal error", cause)
}
