package update

import "reflect"

// leaf is one flattened node of a patch. Exactly one of value or
// directive is meaningful.
type leaf struct {
	path      string
	value     any
	directive map[string]any
}

type frame struct {
	path string
	node map[string]any
}

// isDirective reports whether m is an operator directive rather than a
// nested field
func isDirective(m map[string]any) bool {
	for _, k := range [...]string{KeyAdd, KeyRemove, KeyRemoveField, KeyAddFields, KeyMatchField} {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// flatten walks the payload with an explicit stack and returns its leaves
// in a deterministic order. Directive objects and arrays are never
// descended.
func flatten(payload map[string]any) []leaf {
	var leaves []leaf
	st := []frame{{node: payload}}

	for len(st) != 0 {
		f := st[len(st)-1]
		st = st[:len(st)-1]

		keys := sortedKeys(f.node)
		var children []frame

		for _, k := range keys {
			p := join(f.path, k)
			v := f.node[k]

			m, ok := v.(map[string]any)
			switch {
			case !ok:
				leaves = append(leaves, leaf{path: p, value: v})
			case isDirective(m):
				leaves = append(leaves, leaf{path: p, directive: m})
			case len(m) == 0:
				leaves = append(leaves, leaf{path: p, value: m})
			default:
				children = append(children, frame{path: p, node: m})
			}
		}

		// pushed in reverse so siblings are visited in key order
		for i := len(children) - 1; i >= 0; i-- {
			st = append(st, children[i])
		}
	}
	return leaves
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
