// Package update compiles nested patch documents into a single native
// update document plus the array filters its positional paths need.
package update

import (
	"errors"
	"fmt"
	"sort"
)

// Kind is the type of a compiled operation
type Kind int

const (
	Set Kind = iota
	Unset
	PushEach
	PullIn
	PullEq
	PullOr
	SetPositional
)

func (k Kind) String() string {
	switch k {
	case Set:
		return "set"
	case Unset:
		return "unset"
	case PushEach:
		return "push_each"
	case PullIn:
		return "pull_in"
	case PullEq:
		return "pull_eq"
	case PullOr:
		return "pull_or"
	case SetPositional:
		return "set_positional"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Matcher is the identifier used by every positional path
const Matcher = "elem"

// Sentinel keys
const (
	KeyAdd         = "add"
	KeyRemove      = "remove"
	KeyRemoveField = "removeField"
	KeyAddFields   = "addFields"
	KeyMatchField  = "matchField"
	KeyMatchValue  = "matchValue"
)

var (
	ErrInvalidPayload = errors.New("update payload must be an object")
	ErrEmptyUpdate    = errors.New("update payload produced no operations")
)

type Operation struct {
	Kind  Kind
	Path  string
	Value any
}

// ArrayFilter selects the array elements addressed by $[elem]
type ArrayFilter struct {
	Field string
	Value any
}

func (f ArrayFilter) Doc() map[string]any {
	return map[string]any{Matcher + "." + f.Field: f.Value}
}

// Update is a compiled patch
type Update struct {
	Ops     []Operation
	Filters []ArrayFilter
}

// Compile flattens payload into typed leaves and infers the operator for
// each. The result is a pure function of the payload.
func Compile(payload any) (*Update, error) {
	m, ok := payload.(map[string]any)
	if !ok || m == nil {
		return nil, ErrInvalidPayload
	}

	u := &Update{}
	for _, l := range flatten(m) {
		if err := u.addLeaf(l); err != nil {
			return nil, err
		}
	}

	if len(u.Ops) == 0 {
		return nil, ErrEmptyUpdate
	}
	return u, nil
}

func (u *Update) addLeaf(l leaf) error {
	switch {
	case l.directive != nil:
		return u.addDirective(l.path, l.directive)
	case l.value == nil:
		u.Ops = append(u.Ops, Operation{Kind: Unset, Path: l.path})
	default:
		u.Ops = append(u.Ops, Operation{Kind: Set, Path: l.path, Value: l.value})
	}
	return nil
}

func (u *Update) addDirective(path string, d map[string]any) error {
	if v, ok := d[KeyAdd]; ok {
		values, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%s at '%s' must be an array", KeyAdd, path)
		}
		if len(values) != 0 {
			u.Ops = append(u.Ops, Operation{Kind: PushEach, Path: path, Value: values})
		}
	}

	if v, ok := d[KeyRemove]; ok {
		values, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%s at '%s' must be an array", KeyRemove, path)
		}
		if op, ok := pullOperation(path, values); ok {
			u.Ops = append(u.Ops, op)
		}
	}

	field, _ := d[KeyMatchField].(string)
	value, hasValue := d[KeyMatchValue]
	if field == "" || !hasValue {
		return nil
	}

	addFields, _ := d[KeyAddFields].(map[string]any)
	n := len(u.Ops)

	if rf, _ := d[KeyRemoveField].(string); rf != "" {
		if _, ok := addFields[rf]; !ok {
			u.Ops = append(u.Ops, Operation{Kind: Unset, Path: positional(path, rf)})
		}
	}

	for _, k := range sortedKeys(addFields) {
		u.Ops = append(u.Ops, Operation{
			Kind:  SetPositional,
			Path:  positional(path, k),
			Value: addFields[k],
		})
	}

	// an unused array filter is rejected by the store
	if len(u.Ops) != n {
		u.addFilter(ArrayFilter{Field: field, Value: value})
	}
	return nil
}

func pullOperation(path string, values []any) (Operation, bool) {
	if len(values) == 0 {
		return Operation{}, false
	}
	if _, ok := values[0].(map[string]any); !ok {
		return Operation{Kind: PullIn, Path: path, Value: values}, true
	}
	if len(values) == 1 {
		return Operation{Kind: PullEq, Path: path, Value: values[0]}, true
	}
	return Operation{Kind: PullOr, Path: path, Value: values}, true
}

func (u *Update) addFilter(f ArrayFilter) {
	for _, v := range u.Filters {
		if v.Field == f.Field && equalValues(v.Value, f.Value) {
			return
		}
	}
	u.Filters = append(u.Filters, f)
}

// Document groups the operations into the native update operators
func (u *Update) Document() map[string]any {
	doc := make(map[string]any)

	bucket := func(name string) map[string]any {
		b, ok := doc[name].(map[string]any)
		if !ok {
			b = make(map[string]any)
			doc[name] = b
		}
		return b
	}

	for _, op := range u.Ops {
		switch op.Kind {
		case Set, SetPositional:
			bucket("$set")[op.Path] = op.Value
		case Unset:
			bucket("$unset")[op.Path] = ""
		case PushEach:
			bucket("$push")[op.Path] = map[string]any{"$each": op.Value}
		case PullIn:
			bucket("$pull")[op.Path] = map[string]any{"$in": op.Value}
		case PullEq:
			bucket("$pull")[op.Path] = op.Value
		case PullOr:
			bucket("$pull")[op.Path] = map[string]any{"$or": op.Value}
		}
	}
	return doc
}

// ArrayFilters returns the filters in the form the store expects or nil
// when no positional path was compiled.
func (u *Update) ArrayFilters() []any {
	if len(u.Filters) == 0 {
		return nil
	}
	af := make([]any, len(u.Filters))
	for i, f := range u.Filters {
		af[i] = f.Doc()
	}
	return af
}

func positional(path, field string) string {
	return path + ".$[" + Matcher + "]." + field
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
