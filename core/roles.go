package core

import (
	"context"
	"errors"

	"github.com/patel-ankitb/nestproject-sub000/mongodriver"
)

// loadRole returns the role document roleID of the tenant database
func (e *Engine) loadRole(c context.Context, st Store, tc *TenantConfig, roleID string) (*Role, error) {
	key := tc.Database + "\x00" + roleID
	if r, ok := e.roles.Get(key); ok {
		return r, nil
	}

	filter, err := idFilter(roleID)
	if err != nil {
		return nil, err
	}

	doc, err := st.FindOne(c, e.conf.RoleCollection, filter)
	if errors.Is(err, mongodriver.ErrNotFound) {
		return nil, notFoundError("role '%s' not found", roleID)
	}
	if err != nil {
		return nil, executionError(err, "role lookup failed")
	}

	r, err := parseRole(doc)
	if err != nil {
		return nil, executionError(err, "invalid role '%s'", roleID)
	}

	e.roles.Set(key, r)
	return r, nil
}

// loadUserDocID returns the store id of the acting user or nil when the
// user has no document
func (e *Engine) loadUserDocID(c context.Context, st Store, userID any) (any, error) {
	if userID == nil {
		return nil, nil
	}

	alts := []any{map[string]any{"userId": userID}}
	if s, err := canonicalID(userID); err == nil && s != "" {
		alts = append(alts, map[string]any{"_id": map[string]any{"$in": idForms(s)}})
	}

	doc, err := st.FindOne(c, e.conf.UserCollection, map[string]any{"$or": alts})
	if errors.Is(err, mongodriver.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, executionError(err, "user lookup failed")
	}
	return doc["_id"], nil
}
