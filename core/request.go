package core

import (
	"strings"

	"github.com/patel-ankitb/nestproject-sub000/core/internal/pipeline"
)

// Claims are the decoded identity claims of a bearer token
type Claims struct {
	UserID any
	RoleID string
}

// JoinSpec joins documents of another collection into each result
type JoinSpec struct {
	From         string `json:"from" mapstructure:"from"`
	LocalField   string `json:"localField" mapstructure:"localField"`
	ForeignField string `json:"foreignField" mapstructure:"foreignField"`
	As           string `json:"as" mapstructure:"as"`
	Unwind       bool   `json:"unwind,omitempty" mapstructure:"unwind"`

	// PreserveNulls keeps results without a match when unwinding. The
	// aggregation name preserveNullAndEmptyArrays is accepted as well.
	PreserveNulls        *bool `json:"preserveNulls,omitempty" mapstructure:"preserveNulls"`
	PreserveNullAndEmpty *bool `json:"preserveNullAndEmptyArrays,omitempty" mapstructure:"preserveNullAndEmptyArrays"`
}

func (j JoinSpec) preserveNulls() *bool {
	if j.PreserveNulls != nil {
		return j.PreserveNulls
	}
	return j.PreserveNullAndEmpty
}

// Request is one call against a tenant module. The mode is chosen from
// DocID and the Edit and Add flags.
type Request struct {
	Tenant TenantID
	Claims *Claims
	Module string

	// Fetch
	Query      map[string]any
	Projection map[string]any
	Limit      *int64
	Skip       *int64
	Order      string
	SortBy     string
	Lookups    []JoinSpec
	CompanyID  any

	// Edit and add
	DocID   any
	Edit    bool
	Add     bool
	Payload map[string]any
}

// Response is the result of a successful request
type Response struct {
	Success       bool   `json:"success"`
	Action        Action `json:"action"`
	Count         *int   `json:"count,omitempty"`
	TotalCount    *int64 `json:"totalCount,omitempty"`
	Data          any    `json:"data,omitempty"`
	MatchedCount  *int64 `json:"matchedCount,omitempty"`
	ModifiedCount *int64 `json:"modifiedCount,omitempty"`
	InsertedID    any    `json:"insertedId,omitempty"`
}

func (r *Request) hasDocID() bool {
	switch v := r.DocID.(type) {
	case nil:
		return false
	case string:
		return trimmed(v) != ""
	}
	return true
}

// mode selects exactly one action for the request
func (r *Request) mode() (Action, error) {
	hasID := r.hasDocID()
	switch {
	case r.Add && (hasID || r.Edit):
		return "", validationError("add cannot be combined with docId or edit")
	case hasID || r.Edit:
		if !hasID {
			return "", validationError("docId is required for edit")
		}
		return ActionEdit, nil
	case r.Add:
		return ActionAdd, nil
	}
	return ActionFetch, nil
}

func (r *Request) query(defaultLimit int64) (pipeline.Query, error) {
	q := pipeline.Query{
		Projection: r.Projection,
		SortBy:     trimmed(r.SortBy),
		Limit:      defaultLimit,
	}

	switch strings.ToLower(trimmed(r.Order)) {
	case "", "ascending", "asc":
	case "descending", "desc":
		q.Descending = true
	default:
		return q, validationError("order must be ascending or descending")
	}

	if r.Limit != nil {
		if *r.Limit < 0 {
			return q, validationError("limit cannot be negative")
		}
		q.Limit = *r.Limit
	}
	if r.Skip != nil {
		if *r.Skip < 0 {
			return q, validationError("skip cannot be negative")
		}
		q.Skip = *r.Skip
	}

	for _, j := range r.Lookups {
		q.Joins = append(q.Joins, pipeline.Join{
			From:          j.From,
			LocalField:    j.LocalField,
			ForeignField:  j.ForeignField,
			As:            j.As,
			Unwind:        j.Unwind,
			PreserveNulls: j.preserveNulls(),
		})
	}
	return q, nil
}

// companyIDs flattens the supplied company identifier into a list
func (r *Request) companyIDs() []any {
	switch v := r.CompanyID.(type) {
	case nil:
		return nil
	case string:
		if v = trimmed(v); v == "" {
			return nil
		}
		return []any{v}
	case []any:
		var out []any
		for _, id := range v {
			if s, ok := id.(string); ok && trimmed(s) == "" {
				continue
			}
			if id != nil {
				out = append(out, id)
			}
		}
		return out
	case []string:
		var out []any
		for _, s := range v {
			if s = trimmed(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return []any{r.CompanyID}
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
