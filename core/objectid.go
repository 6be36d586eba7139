package core

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// CoerceIDs deep-walks v and promotes every hex-24 string and every
// {"$oid": hex} object to a native ObjectID. Maps and slices are copied.
func CoerceIDs(v any) any {
	switch val := v.(type) {
	case string:
		if oid, ok := parseObjectID(val); ok {
			return oid
		}
		return val
	case map[string]any:
		if oid, ok := extendedOID(val); ok {
			return oid
		}
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = CoerceIDs(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = CoerceIDs(v)
		}
		return out
	default:
		return v
	}
}

// CoerceFilter is CoerceIDs for read filters. Comparisons on identifier
// keys match both the string and the ObjectID form of a hex-24 value, so
// documents written with either form are found.
func CoerceFilter(filter map[string]any) map[string]any {
	if filter == nil {
		return nil
	}
	out := make(map[string]any, len(filter))
	for k, v := range filter {
		switch {
		case k == "$and" || k == "$or" || k == "$nor":
			out[k] = coerceFilterList(v)
		case isIDKey(k):
			out[k] = dualFormCondition(v)
		default:
			out[k] = CoerceIDs(v)
		}
	}
	return out
}

func coerceFilterList(v any) any {
	list, ok := v.([]any)
	if !ok {
		return CoerceIDs(v)
	}
	out := make([]any, len(list))
	for i, item := range list {
		if m, ok := item.(map[string]any); ok {
			out[i] = CoerceFilter(m)
		} else {
			out[i] = CoerceIDs(item)
		}
	}
	return out
}

func dualFormCondition(v any) any {
	switch val := v.(type) {
	case string:
		if forms := idForms(val); len(forms) > 1 {
			return map[string]any{"$in": forms}
		}
		return val
	case map[string]any:
		if oid, ok := extendedOID(val); ok {
			return map[string]any{"$in": []any{oid.Hex(), oid}}
		}
		out := make(map[string]any, len(val))
		for op, arg := range val {
			switch op {
			case "$eq":
				out["$in"] = expandForms([]any{arg})
			case "$ne":
				out["$nin"] = expandForms([]any{arg})
			case "$in", "$nin":
				if list, ok := arg.([]any); ok {
					out[op] = expandForms(list)
				} else {
					out[op] = CoerceIDs(arg)
				}
			default:
				out[op] = CoerceIDs(arg)
			}
		}
		return out
	default:
		return CoerceIDs(v)
	}
}

func expandForms(list []any) []any {
	out := make([]any, 0, len(list)*2)
	for _, v := range list {
		switch val := v.(type) {
		case string:
			out = append(out, idForms(val)...)
		case bson.ObjectID:
			out = append(out, val.Hex(), val)
		default:
			out = append(out, CoerceIDs(v))
		}
	}
	return out
}

// idForms returns s and, when s is a hex-24 string, its ObjectID
func idForms(s string) []any {
	if oid, ok := parseObjectID(s); ok {
		return []any{s, oid}
	}
	return []any{s}
}

// idFilter matches a document by _id in either of its forms
func idFilter(id any) (map[string]any, error) {
	s, err := canonicalID(id)
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, validationError("docId is required")
	}
	return map[string]any{"_id": map[string]any{"$in": idForms(s)}}, nil
}

// canonicalID converts a caller supplied identifier to its string form.
// Empty means no identifier was supplied.
func canonicalID(id any) (string, error) {
	switch v := id.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case bson.ObjectID:
		return v.Hex(), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), nil
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case map[string]any:
		if oid, ok := extendedOID(v); ok {
			return oid.Hex(), nil
		}
	}
	return "", validationError("unsupported identifier %v (%T)", id, id)
}

func isIDKey(k string) bool {
	return k == "_id" || (len(k) > 2 && strings.HasSuffix(k, "Id"))
}

func parseObjectID(s string) (bson.ObjectID, bool) {
	if len(s) != 24 {
		return bson.ObjectID{}, false
	}
	oid, err := bson.ObjectIDFromHex(s)
	if err != nil {
		return bson.ObjectID{}, false
	}
	return oid, true
}

func extendedOID(m map[string]any) (bson.ObjectID, bool) {
	if len(m) != 1 {
		return bson.ObjectID{}, false
	}
	s, ok := m["$oid"].(string)
	if !ok {
		return bson.ObjectID{}, false
	}
	return parseObjectID(s)
}
