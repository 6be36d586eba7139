package core

import (
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type Action string

const (
	ActionFetch Action = "fetch"
	ActionAdd   Action = "add"
	ActionEdit  Action = "edit"
)

type Permissions struct {
	CanAdd          *bool `mapstructure:"canAdd"`
	CanEdit         *bool `mapstructure:"canEdit"`
	CanRead         *bool `mapstructure:"canRead"`
	CanCreateModule *bool `mapstructure:"canCreateModule"`
}

// Allows reports whether action is permitted. Absent flags allow.
func (p Permissions) Allows(a Action) bool {
	var f *bool
	switch a {
	case ActionFetch:
		f = p.CanRead
	case ActionAdd:
		f = p.CanAdd
	case ActionEdit:
		f = p.CanEdit
	}
	return f == nil || *f
}

type RoleGrant struct {
	Module         string
	Permissions    Permissions
	AssignedFields []string
	Condition      Condition
}

type Role struct {
	ID           string
	Name         string
	IsSuperAdmin bool
	IsSaaSRole   bool
	Grants       []RoleGrant
}

type grantRecord struct {
	Module         string      `mapstructure:"module"`
	ModuleName     string      `mapstructure:"moduleName"`
	Name           string      `mapstructure:"name"`
	Permissions    Permissions `mapstructure:"permissions"`
	AssignedFields []string    `mapstructure:"assignedField"`
	Fields         []string    `mapstructure:"assignedFields"`
	Condition      Condition   `mapstructure:"condition"`
}

type roleRecord struct {
	Role         string        `mapstructure:"role"`
	IsSuperAdmin bool          `mapstructure:"isSuperAdmin"`
	IsSaaSRole   bool          `mapstructure:"issaasrole"`
	Modules      []grantRecord `mapstructure:"modules"`
}

// parseRole ingests a stored role document
func parseRole(doc map[string]any) (*Role, error) {
	var r roleRecord
	if err := decode(doc, &r); err != nil {
		return nil, fmt.Errorf("role document: %w", err)
	}

	id, _ := canonicalID(doc["_id"])
	role := &Role{
		ID:           id,
		Name:         r.Role,
		IsSuperAdmin: r.IsSuperAdmin || normalizeRoleName(r.Role) == "superadmin",
		IsSaaSRole:   r.IsSaaSRole,
	}

	for _, g := range r.Modules {
		name := g.Module
		for _, n := range [...]string{g.ModuleName, g.Name} {
			if strings.TrimSpace(name) == "" {
				name = n
			}
		}
		role.Grants = append(role.Grants, RoleGrant{
			Module:         strings.TrimSpace(name),
			Permissions:    g.Permissions,
			AssignedFields: append(g.AssignedFields, g.Fields...),
			Condition:      parseCondition(g.Condition),
		})
	}
	return role, nil
}

func normalizeRoleName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(s))
}

// Grant returns the grant for module
func (r *Role) Grant(module string) (RoleGrant, bool) {
	for _, g := range r.Grants {
		if sameName(g.Module, module) {
			return g, true
		}
	}
	return RoleGrant{}, false
}

// Subject describes the caller a role is evaluated for
type Subject struct {
	UserID     any
	UserDocID  any
	CompanyIDs []any

	// CompanyScoped is set when the tenant database has a company collection
	CompanyScoped bool
	CompanyField  string
}

type Decision struct {
	Allowed    bool
	SuperAdmin bool
	RowFilter  map[string]any

	// joins holds one entry per requested lookup, in request order
	joins []joinAccess
}

// joinAccess is the resolved collection of a lookup and the row filter
// applied to the documents it joins
type joinAccess struct {
	From   string
	Filter map[string]any
}

// Evaluate decides whether the role may perform action on module and,
// for fetches, which rows it may see.
func (r *Role) Evaluate(module string, action Action, sub Subject) (Decision, error) {
	return r.EvaluateModule(ModuleDescriptor{Name: module}, action, sub)
}

// EvaluateModule is Evaluate for a tenant module. The module's assigned
// fields and condition apply when the role grant names no fields.
func (r *Role) EvaluateModule(desc ModuleDescriptor, action Action, sub Subject) (Decision, error) {
	if r.IsSuperAdmin {
		return Decision{Allowed: true, SuperAdmin: true}, nil
	}

	module := desc.Name
	g, ok := r.Grant(module)
	if !ok {
		return Decision{}, forbiddenError("module '%s' is not granted to role '%s'", module, r.Name)
	}
	if !g.Permissions.Allows(action) {
		return Decision{}, forbiddenError("role '%s' may not %s module '%s'", r.Name, action, module)
	}
	if len(g.AssignedFields) == 0 && len(desc.AssignedFields) != 0 {
		g.AssignedFields = desc.AssignedFields
		g.Condition = desc.Condition
	}

	d := Decision{Allowed: true}
	if action != ActionFetch || r.IsSaaSRole {
		return d, nil
	}

	var company map[string]any
	if sub.CompanyScoped && !sameName(module, "company") {
		if len(sub.CompanyIDs) == 0 {
			return Decision{}, forbiddenError("companyId is required for module '%s'", module)
		}
		company = map[string]any{sub.CompanyField: map[string]any{"$in": expandForms(sub.CompanyIDs)}}
	}

	d.RowFilter = rowFilter(g, company, sub.userMatches())
	return d, nil
}

// filtersByUser reports whether reading any of mods filters rows by the
// acting user
func (r *Role) filtersByUser(mods ...ModuleDescriptor) bool {
	if r.IsSuperAdmin || r.IsSaaSRole {
		return false
	}
	for _, m := range mods {
		if g, ok := r.Grant(m.Name); ok && (len(g.AssignedFields) != 0 || len(m.AssignedFields) != 0) {
			return true
		}
	}
	return false
}

// rowFilter combines the company match with one match per assigned field
func rowFilter(g RoleGrant, company map[string]any, users []any) map[string]any {
	if len(g.AssignedFields) == 0 {
		return company
	}

	var fields []any
	for _, f := range g.AssignedFields {
		fields = append(fields, map[string]any{f: map[string]any{"$in": users}})
	}

	if company == nil {
		return map[string]any{"$or": fields}
	}

	if g.Condition == ConditionAnd {
		var alts []any
		for _, f := range fields {
			alts = append(alts, map[string]any{"$and": []any{company, f}})
		}
		return map[string]any{"$or": alts}
	}
	return map[string]any{"$or": append([]any{company}, fields...)}
}

// userMatches lists every form the acting user may be recorded under
func (s Subject) userMatches() []any {
	out := []any{}
	add := func(v any) {
		if v == nil {
			return
		}
		for _, e := range out {
			if reflect.DeepEqual(e, v) {
				return
			}
		}
		out = append(out, v)
	}

	add(s.UserID)
	if str, ok := s.UserID.(string); ok {
		if oid, ok := parseObjectID(str); ok {
			add(oid)
		}
	}

	add(s.UserDocID)
	switch v := s.UserDocID.(type) {
	case bson.ObjectID:
		add(v.Hex())
	case string:
		if oid, ok := parseObjectID(v); ok {
			add(oid)
		}
	}
	return out
}

// mergeRowFilter applies the row filter to the caller filter
func mergeRowFilter(mode string, base, row map[string]any) map[string]any {
	if len(row) == 0 {
		return base
	}
	if len(base) == 0 {
		return row
	}
	if mode == RowFilterAnd {
		return map[string]any{"$and": []any{base, row}}
	}
	out := make(map[string]any, len(base)+len(row))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range row {
		out[k] = v
	}
	return out
}

// permissionListHook accepts permissions stored as a list of granted
// names. Names missing from such a list are denied.
func permissionListHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(Permissions{}) || from.Kind() != reflect.Slice {
		return data, nil
	}
	m := map[string]any{
		"canAdd":          false,
		"canEdit":         false,
		"canRead":         false,
		"canCreateModule": false,
	}
	if list, ok := data.([]any); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				m[s] = true
			}
		}
	}
	return m, nil
}
