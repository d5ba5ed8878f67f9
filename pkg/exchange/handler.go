package exchange

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apperr "github.com/17ms/zeronote/pkg/errors"
	"github.com/17ms/zeronote/pkg/logging"
)

// maxFormBytes caps the form body of a token request.
const maxFormBytes = 16 << 10

// Handler serves POST /token with an application/x-www-form-urlencoded
// body:
//
//	grant_type=authorization_code&client_id=...&code=...&code_verifier=...&redirect_uri=...
//
// The endpoint is unauthenticated; the tokens it returns are what the
// authorization middleware later verifies.
type Handler struct {
	exchanger *Exchanger
	logger    *slog.Logger
}

// NewHandler returns a handler that delegates to e. A nil logger uses
// slog.Default().
func NewHandler(e *Exchanger, logger *slog.Logger) *Handler {
	return &Handler{exchanger: e, logger: logging.OrDefault(logger)}
}

// ServeHTTP exchanges the posted code. Any method but POST is answered
// 405 with an Allow header. A successful response carries the provider
// tokens and is marked uncacheable; failures use the JSON rejection body
// with a message chosen by publicError.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		apperr.WriteJSON(w, apperr.Wrap(err, apperr.CodeValidationFormat, "Malformed form body"))
		return
	}
	if gt := r.PostForm.Get("grant_type"); gt != "authorization_code" {
		apperr.WriteJSON(w, apperr.New(apperr.CodeValidation, "grant_type must be authorization_code"))
		return
	}

	resp, err := h.exchanger.Exchange(r.Context(), Request{
		ClientID:    r.PostForm.Get("client_id"),
		Code:        r.PostForm.Get("code"),
		Verifier:    r.PostForm.Get("code_verifier"),
		RedirectURI: r.PostForm.Get("redirect_uri"),
	})
	if err != nil {
		apperr.WriteJSON(w, publicError(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write token response", slog.Any("error", err))
	}
}

// publicError keeps validation messages and replaces everything else with
// a fixed message for its code. Provider descriptions stay in the logs.
func publicError(err error) error {
	code := apperr.GetCode(err)
	switch {
	case code == apperr.CodeExchangeRejected:
		return apperr.New(code, "Authorization code rejected")
	case code == apperr.CodeCodeReplayed:
		return apperr.New(code, "Authorization code already used")
	case apperr.IsValidation(err):
		return err
	case apperr.IsTimeout(err):
		return apperr.New(code, "Token endpoint timed out")
	case apperr.IsUnavailable(err):
		return apperr.New(code, "Token endpoint unavailable")
	default:
		return apperr.New(apperr.CodeInternal, "Internal Server Error")
	}
}
