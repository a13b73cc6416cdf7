package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"fundtrace/internal/domain"
	"fundtrace/internal/ledger"
	"fundtrace/internal/providers/gateway"
	"fundtrace/internal/risk"
	"fundtrace/internal/stats"
	"fundtrace/internal/transparency"
)

const maxBodyBytes = 1 << 20

// EvidenceStore keeps uploaded evidence files and returns their public URL.
type EvidenceStore interface {
	Put(ctx context.Context, kind, filename string, data []byte, now time.Time) (string, error)
}

// PaymentGateway verifies gateway notifications and opens checkouts.
type PaymentGateway interface {
	Interpret(n gateway.Notification) (gateway.Outcome, error)
	CreateCheckout(d *domain.Donation, pt *domain.PaymentTransaction) (*gateway.Checkout, error)
}

// App holds the collaborators the HTTP handlers delegate to. Gateway and
// Evidence are optional.
type App struct {
	Ledger   *ledger.Engine
	Reader   domain.LedgerReader
	Verifier *transparency.Verifier
	Risk     *risk.Service
	Stats    *stats.Aggregator
	Evidence EvidenceStore
	Gateway  PaymentGateway
	Ping     func(ctx context.Context) error
	Logger   zerolog.Logger
	Now      func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Fields  []fieldProblem `json:"fields,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

type fieldProblem struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{"error": errorBody{Code: errCode, Message: message}})
}

// fail maps a service error to its HTTP response.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *domain.ValidationError
		oerr *domain.OverAllocationError
	)
	body := errorBody{Message: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status, body.Code = http.StatusBadRequest, "validation_failed"
		for _, f := range verr.Fields {
			body.Fields = append(body.Fields, fieldProblem{Field: f.Field, Rule: f.Rule})
		}
	case errors.As(err, &oerr):
		status, body.Code = http.StatusUnprocessableEntity, "over_allocation"
		body.Details = map[string]any{
			"scope":     oerr.Scope,
			"limit":     oerr.Limit.String(),
			"committed": oerr.Committed.String(),
			"requested": oerr.Requested.String(),
			"headroom":  oerr.Headroom().String(),
		}
	case errors.Is(err, domain.ErrInvalidAmount):
		status, body.Code = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, domain.ErrInvalidTarget):
		status, body.Code = http.StatusUnprocessableEntity, "invalid_target"
	case errors.Is(err, domain.ErrNotFound):
		status, body.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		status, body.Code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrDonationNotSettled):
		status, body.Code = http.StatusConflict, "donation_not_settled"
	case errors.Is(err, domain.ErrAlreadySettled):
		status, body.Code = http.StatusConflict, "already_settled"
	case errors.Is(err, domain.ErrUtilizationNotApproved):
		status, body.Code = http.StatusConflict, "utilization_not_approved"
	case errors.Is(err, domain.ErrNotVerified):
		status, body.Code = http.StatusConflict, "not_verified"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, body.Code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrDuplicateOperation):
		status, body.Code = http.StatusConflict, "duplicate_operation"
	case errors.Is(err, domain.ErrFundsCommitted):
		status, body.Code = http.StatusConflict, "funds_committed"
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Code, body.Message = "internal", "internal server error"
	}
	a.json(w, status, map[string]any{"error": body})
}

// decode reads a JSON body into v, rejecting unknown fields and trailing data.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload: "+err.Error())
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload: trailing data")
		return false
	}
	return true
}

// decodeLenient is decode for third-party payloads that carry fields we do
// not model.
func (a *App) decodeLenient(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload: "+err.Error())
		return false
	}
	return true
}

func (a *App) idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid "+name)
		return 0, false
	}
	return id, true
}
