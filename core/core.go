package core

import (
	"context"

	"github.com/patel-ankitb/nestproject-sub000/core/internal/pipeline"
	"github.com/patel-ankitb/nestproject-sub000/core/internal/update"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Do resolves the tenant of req, authorizes the caller and runs exactly
// one of fetch, add or edit against the tenant database.
func (e *Engine) Do(c context.Context, req *Request) (res *Response, err error) {
	c, span := e.spanStart(c, "Do Request")
	defer func() {
		if err != nil {
			err = internalError(err)
			span.Error(err)
		}
		span.End()
	}()

	if req == nil {
		return nil, validationError("request is required")
	}

	module := trimmed(req.Module)
	if module == "" {
		return nil, validationError("moduleName is required")
	}

	action, err := req.mode()
	if err != nil {
		return nil, err
	}

	span.SetAttributesString(
		StringAttr{"module", module},
		StringAttr{"action", string(action)})

	e.log.Debugf("request: module=%s action=%s", module, action)

	tc, err := e.resolveTenant(c, req.Tenant)
	if err != nil {
		return nil, err
	}

	desc, err := tc.Module(module)
	if err != nil {
		return nil, err
	}

	st, err := e.pool.Acquire(c, tc.ConnString, tc.Database)
	if err != nil {
		return nil, err
	}

	d, err := e.authorize(c, st, tc, desc, req, action)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionAdd:
		return e.add(c, st, desc, req)
	case ActionEdit:
		return e.edit(c, st, desc, req)
	default:
		return e.fetch(c, st, desc, req, d)
	}
}

func (e *Engine) resolveTenant(c context.Context, id TenantID) (*TenantConfig, error) {
	c1, span := e.spanStart(c, "Resolve Tenant")
	defer span.End()

	tc, err := e.dir.Resolve(c1, id)
	if err != nil {
		span.Error(err)
		return nil, err
	}
	span.SetAttributesString(StringAttr{"database", tc.Database})
	return tc, nil
}

// authorize applies the module descriptor permissions and, when the
// caller presents a role, the role grants. Lookups of a fetch must name
// allowed modules and pass the same checks as the module itself. Without
// a role only the tenant's module list applies.
func (e *Engine) authorize(c context.Context,
	st Store,
	tc *TenantConfig,
	desc ModuleDescriptor,
	req *Request,
	action Action,
) (Decision, error) {
	switch {
	case action == ActionAdd && !desc.CanAdd():
		return Decision{}, forbiddenError("adding to module '%s' is not allowed", desc.Name)
	case action == ActionEdit && !desc.CanEdit():
		return Decision{}, forbiddenError("editing module '%s' is not allowed", desc.Name)
	}

	var joins []ModuleDescriptor
	if action == ActionFetch {
		for _, j := range req.Lookups {
			jd := ModuleDescriptor{}
			// a lookup without from is reported by the pipeline builder
			if trimmed(j.From) != "" {
				var err error
				if jd, err = tc.Module(j.From); err != nil {
					return Decision{}, err
				}
			}
			joins = append(joins, jd)
		}
	}

	if req.Claims == nil || trimmed(req.Claims.RoleID) == "" {
		d := Decision{Allowed: true}
		for _, jd := range joins {
			d.joins = append(d.joins, joinAccess{From: jd.Name})
		}
		return d, nil
	}

	c1, span := e.spanStart(c, "Evaluate Role")
	defer span.End()

	role, err := e.loadRole(c1, st, tc, trimmed(req.Claims.RoleID))
	if err != nil {
		span.Error(err)
		return Decision{}, err
	}
	span.SetAttributesString(StringAttr{"role", role.Name})

	sub := Subject{
		UserID:       req.Claims.UserID,
		CompanyIDs:   req.companyIDs(),
		CompanyField: e.conf.CompanyField,
	}

	if action == ActionFetch && !role.IsSuperAdmin && !role.IsSaaSRole {
		if sub.CompanyScoped, err = st.HasCollection(c1, e.conf.CompanyCollection); err != nil {
			return Decision{}, executionError(err, "collection lookup failed")
		}
		if role.filtersByUser(append([]ModuleDescriptor{desc}, joins...)...) {
			if sub.UserDocID, err = e.loadUserDocID(c1, st, sub.UserID); err != nil {
				return Decision{}, err
			}
		}
	}

	d, err := role.EvaluateModule(desc, action, sub)
	if err != nil {
		span.Error(err)
		return Decision{}, err
	}

	for _, jd := range joins {
		if jd.Name == "" {
			d.joins = append(d.joins, joinAccess{})
			continue
		}
		jdec, err := role.EvaluateModule(jd, ActionFetch, sub)
		if err != nil {
			span.Error(err)
			return Decision{}, err
		}
		d.joins = append(d.joins, joinAccess{From: jd.Name, Filter: jdec.RowFilter})
	}
	return d, nil
}

func (e *Engine) fetch(c context.Context,
	st Store,
	desc ModuleDescriptor,
	req *Request,
	d Decision,
) (*Response, error) {
	if err := e.requireCollection(c, st, desc.Name); err != nil {
		return nil, err
	}

	q, err := req.query(e.conf.DefaultLimit)
	if err != nil {
		return nil, err
	}
	q.Filter = mergeRowFilter(e.conf.RowFilterMode, CoerceFilter(req.Query), d.RowFilter)
	for i, ja := range d.joins {
		if i < len(q.Joins) && ja.From != "" {
			q.Joins[i].From = ja.From
			q.Joins[i].Filter = ja.Filter
		}
	}

	stages, err := pipeline.Build(q)
	if err != nil {
		return nil, validationError("%s", err)
	}

	c1, span := e.spanStart(c, "Execute Fetch")
	docs, err := st.Aggregate(c1, desc.Name, stages)
	if err != nil {
		span.Error(err)
		span.End()
		return nil, executionError(err, "fetch from '%s' failed", desc.Name)
	}
	span.End()

	if docs == nil {
		docs = []map[string]any{}
	}

	total, err := e.count(c, st, desc.Name, q, len(docs))
	if err != nil {
		return nil, err
	}

	n := len(docs)
	return &Response{
		Success:    true,
		Action:     ActionFetch,
		Count:      &n,
		TotalCount: &total,
		Data:       docs,
	}, nil
}

// count returns the total number of matching documents. With joins the
// filter and joins are re-run through a count pipeline and a failure
// there falls back to the page length.
func (e *Engine) count(c context.Context, st Store, coll string, q pipeline.Query, fetched int) (int64, error) {
	c1, span := e.spanStart(c, "Execute Count")
	defer span.End()

	if len(q.Joins) == 0 {
		n, err := st.Count(c1, coll, q.Filter)
		if err != nil {
			span.Error(err)
			return 0, executionError(err, "count of '%s' failed", coll)
		}
		return n, nil
	}

	stages, err := pipeline.BuildCount(q)
	if err != nil {
		return 0, validationError("%s", err)
	}

	docs, err := st.Aggregate(c1, coll, stages)
	if err == nil {
		var n int64
		if n, err = pipeline.CountResult(docs); err == nil {
			return n, nil
		}
	}

	e.log.Warnf("count of '%s' failed, using page length: %s", coll, err)
	return int64(fetched), nil
}

func (e *Engine) add(c context.Context, st Store, desc ModuleDescriptor, req *Request) (*Response, error) {
	id, err := canonicalID(req.Payload["_id"])
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = bson.NewObjectID().Hex()
	}

	doc := make(map[string]any, len(req.Payload)+1)
	for k, v := range req.Payload {
		if k != "_id" {
			doc[k] = CoerceIDs(v)
		}
	}
	doc["_id"] = id

	c1, span := e.spanStart(c, "Execute Add")
	defer span.End()

	if _, err := st.InsertOne(c1, desc.Name, doc); err != nil {
		span.Error(err)
		return nil, executionError(err, "insert into '%s' failed", desc.Name)
	}

	return &Response{
		Success:    true,
		Action:     ActionAdd,
		InsertedID: id,
	}, nil
}

func (e *Engine) edit(c context.Context, st Store, desc ModuleDescriptor, req *Request) (*Response, error) {
	if len(req.Payload) == 0 {
		return nil, validationError("an update payload is required")
	}

	filter, err := idFilter(req.DocID)
	if err != nil {
		return nil, err
	}

	u, err := update.Compile(CoerceIDs(req.Payload))
	if err != nil {
		return nil, validationError("%s", err)
	}

	if err := e.requireCollection(c, st, desc.Name); err != nil {
		return nil, err
	}

	c1, span := e.spanStart(c, "Execute Edit")
	defer span.End()

	matched, modified, err := st.UpdateOne(c1, desc.Name, filter, u.Document(), u.ArrayFilters())
	if err != nil {
		span.Error(err)
		return nil, executionError(err, "update of '%s' failed", desc.Name)
	}

	return &Response{
		Success:       true,
		Action:        ActionEdit,
		MatchedCount:  &matched,
		ModifiedCount: &modified,
	}, nil
}

func (e *Engine) requireCollection(c context.Context, st Store, name string) error {
	ok, err := st.HasCollection(c, name)
	if err != nil {
		return executionError(err, "collection lookup failed")
	}
	if !ok {
		return notFoundError("collection '%s' not found", name)
	}
	return nil
}

func (e *Engine) spanStart(c context.Context, name string) (context.Context, Spaner) {
	return e.trace.Start(c, name)
}
