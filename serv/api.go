package serv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-http-utils/headers"
	"github.com/go-playground/validator/v10"
	"github.com/patel-ankitb/nestproject-sub000/core"
)

const maxBodySize = 10 << 20

// dataRequest is the generic request envelope. The patch of an edit may
// arrive as body, update or payload.
type dataRequest struct {
	ModuleName string          `json:"moduleName" validate:"required"`
	AppName    string          `json:"appName"`
	Query      map[string]any  `json:"query"`
	Projection map[string]any  `json:"projection"`
	Limit      *int64          `json:"limit" validate:"omitempty,min=0"`
	Skip       *int64          `json:"skip" validate:"omitempty,min=0"`
	Order      string          `json:"order"`
	SortBy     string          `json:"sortBy"`
	Lookups    []core.JoinSpec `json:"lookups" validate:"dive"`
	CompanyID  any             `json:"companyId"`
	DocID      any             `json:"docId"`
	Edit       bool            `json:"edit"`
	Add        bool            `json:"add"`
	Body       map[string]any  `json:"body"`
	Update     map[string]any  `json:"update"`
	Payload    map[string]any  `json:"payload"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
	RequestID string `json:"requestId,omitempty"`
}

func (d *dataRequest) patch() map[string]any {
	for _, p := range []map[string]any{d.Payload, d.Body, d.Update} {
		if p != nil {
			return p
		}
	}
	return nil
}

func (d *dataRequest) request(tenant core.TenantID, claims *core.Claims) *core.Request {
	return &core.Request{
		Tenant:     tenant,
		Claims:     claims,
		Module:     d.ModuleName,
		Query:      d.Query,
		Projection: d.Projection,
		Limit:      d.Limit,
		Skip:       d.Skip,
		Order:      d.Order,
		SortBy:     d.SortBy,
		Lookups:    d.Lookups,
		CompanyID:  d.CompanyID,
		DocID:      d.DocID,
		Edit:       d.Edit,
		Add:        d.Add,
		Payload:    d.patch(),
	}
}

// dataHandler runs one generic data request
// POST /api/v1/data
func dataHandler(s1 *HttpService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := s1.load()
		c := r.Context()

		var req dataRequest
		if err := decodeBody(r, &req); err != nil {
			s.renderErr(c, w, http.StatusBadRequest, core.ErrValidation.String(), err.Error())
			return
		}

		if err := s.validate.Struct(&req); err != nil {
			s.renderErr(c, w, http.StatusBadRequest, core.ErrValidation.String(), validationMessage(err))
			return
		}

		claims, err := s.claims(r)
		if err != nil {
			s.renderErr(c, w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		tenant := core.TenantID{
			APIKey:  r.Header.Get(s.conf.APIKeyHeader),
			AppName: req.AppName,
		}

		res, err := s.engine.Do(c, req.request(tenant, claims))
		if err != nil {
			s.renderEngineErr(c, w, err)
			return
		}

		w.Header().Set(headers.ContentType, "application/json")
		writeJSON(w, res)
	})
}

// healthCheckHandler pings the central database
// GET /health
func healthCheckHandler(s1 *HttpService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := s1.load()

		c, cancel := context.WithTimeout(r.Context(), s.conf.PingTimeout)
		defer cancel()

		if err := s.engine.Ping(c); err != nil {
			s.log.Errorw("health check failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func decodeBody(r *http.Request, v any) error {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return errors.New("request body is required")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("invalid request body JSON: %w", err)
	}
	return nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}

	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fieldName(fe)))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s cannot be negative", fieldName(fe)))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fieldName(fe)))
		}
	}
	return strings.Join(msgs, ", ")
}

// fieldName returns the json name of a struct field
func fieldName(fe validator.FieldError) string {
	n := fe.Field()
	if n == "" {
		return "field"
	}
	return strings.ToLower(n[:1]) + n[1:]
}

// statusOf maps an engine error kind to a http status
func statusOf(kind core.ErrorKind) int {
	switch kind {
	case core.ErrValidation:
		return http.StatusBadRequest
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrForbidden:
		return http.StatusForbidden
	case core.ErrConnection:
		return http.StatusServiceUnavailable
	case core.ErrExecution:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *dataService) renderEngineErr(c context.Context, w http.ResponseWriter, err error) {
	kind := core.KindOf(err)

	if kind == core.ErrInternal || kind == core.ErrConnection || kind == core.ErrExecution {
		s.log.Errorw("request failed", "kind", kind.String(), "error", err, "request-id", requestIDFrom(c))
	} else {
		s.log.Debugw("request rejected", "kind", kind.String(), "error", err, "request-id", requestIDFrom(c))
	}

	msg := err.Error()
	var e *core.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	s.renderErr(c, w, statusOf(kind), kind.String(), msg)
}

func (s *dataService) renderErr(c context.Context, w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set(headers.ContentType, "application/json")
	w.WriteHeader(status)
	writeJSON(w, errorResponse{
		Success:   false,
		Message:   msg,
		Kind:      kind,
		RequestID: requestIDFrom(c),
	})
}

// writeJSON encodes data as JSON and writes to response, handling errors
func writeJSON(w http.ResponseWriter, data any) {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}
