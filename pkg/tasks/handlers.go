package tasks

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/17ms/zeronote/pkg/auth"
	apperr "github.com/17ms/zeronote/pkg/errors"
	"github.com/17ms/zeronote/pkg/logging"
	"github.com/17ms/zeronote/pkg/models"
	"github.com/17ms/zeronote/pkg/policy"
)

// maxBodyBytes caps request bodies; a larger body fails JSON decoding.
const maxBodyBytes = 64 << 10

// Handler serves the task API. It must be mounted behind the
// authorization middleware; a request without an identity is rejected.
type Handler struct {
	store  Store
	logger *slog.Logger
}

// NewHandler returns a handler over store. A nil logger uses
// slog.Default().
func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logging.OrDefault(logger)}
}

// Routes returns a router meant to be mounted at /api:
//
//	GET    /all         list the caller's tasks
//	POST   /new         create a task
//	PUT    /update      replace title, body and condition
//	DELETE /delete      delete by id
//	GET    /tasks/{id}  fetch one task
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/all", h.list)
	r.Post("/new", h.create)
	r.Put("/update", h.update)
	r.Delete("/delete", h.delete)
	r.Get("/tasks/{id}", h.get)
	return r
}

// ===========================================================================
// Route handlers
// ===========================================================================

// list returns the caller's tasks; an empty list is [] rather than null.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	tasks, err := h.store.List(r.Context(), policy.FilterFor(identity, policy.OpList))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, tasks)
}

// get fetches one task by path id. Another owner's task is a 404.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	id, err := models.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	task, err := h.store.Get(r.Context(), policy.FilterFor(identity, policy.OpRead), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, task)
}

// create stores a new task owned by the caller. A client supplied
// owner_id never reaches the store; a mismatching one is logged.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req models.CreateTask
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.OwnerID != "" && req.OwnerID != identity.OwnerID {
		h.logger.WarnContext(r.Context(), "ignoring client supplied owner",
			slog.String("owner_id", identity.OwnerID))
	}
	task, err := h.store.Create(r.Context(), policy.AssignmentFor(identity), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, task)
}

// update replaces title, body and condition of one of the caller's tasks.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req models.UpdateTask
	if !h.decode(w, r, &req) {
		return
	}
	change, err := req.Validate()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	task, err := h.store.Update(r.Context(), policy.FilterFor(identity, policy.OpUpdate), change)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, task)
}

// delete answers with the number of deleted tasks, which is always 1.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	var req models.DeleteTask
	if !h.decode(w, r, &req) {
		return
	}
	id, err := req.Validate()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.Delete(r.Context(), policy.FilterFor(identity, policy.OpDelete), id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, 1)
}

// ===========================================================================
// Helpers
// ===========================================================================

// identity reads the caller attached by the middleware. Its absence means
// the router was wired without authentication, so the request is refused
// as if no header had been sent.
func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity.OwnerID == "" {
		h.logger.ErrorContext(r.Context(), "task route reached without an identity")
		apperr.WriteJSON(w, apperr.New(apperr.CodeAuthNotFound, "Authorization header missing"))
		return auth.Identity{}, false
	}
	return identity, true
}

// decode reads a bounded JSON body into v. Validation errors raised by
// UnmarshalJSON keep their code; anything else is a malformed body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if apperr.IsValidation(err) {
			h.fail(w, r, err)
		} else {
			h.fail(w, r, apperr.Wrap(err, apperr.CodeValidationFormat, "Malformed JSON body"))
		}
		return false
	}
	return true
}

// fail writes err. Client errors keep their message; server side failures
// are logged and answered with a fixed message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperr.IsClientError(err) {
		apperr.WriteJSON(w, err)
		return
	}
	h.logger.ErrorContext(r.Context(), "task request failed",
		slog.String("code", string(apperr.GetCode(err))),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))

	switch {
	case apperr.IsTimeout(err):
		apperr.WriteJSON(w, apperr.New(apperr.GetCode(err), "Database timed out"))
	case apperr.IsUnavailable(err):
		apperr.WriteJSON(w, apperr.New(apperr.GetCode(err), "Service unavailable"))
	default:
		apperr.WriteJSON(w, apperr.New(apperr.CodeInternal, "Internal Server Error"))
	}
}

// writeJSON answers 200 with v encoded as JSON.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
