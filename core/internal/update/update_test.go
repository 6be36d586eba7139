package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileBuckets(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		doc     map[string]any
	}{
		{
			name:    "push each",
			payload: map[string]any{"field": map[string]any{"add": []any{1, 2, 3}}},
			doc: map[string]any{
				"$push": map[string]any{"field": map[string]any{"$each": []any{1, 2, 3}}},
			},
		},
		{
			name:    "pull primitives",
			payload: map[string]any{"field": map[string]any{"remove": []any{"a", "b"}}},
			doc: map[string]any{
				"$pull": map[string]any{"field": map[string]any{"$in": []any{"a", "b"}}},
			},
		},
		{
			name:    "pull null first",
			payload: map[string]any{"field": map[string]any{"remove": []any{nil, "b"}}},
			doc: map[string]any{
				"$pull": map[string]any{"field": map[string]any{"$in": []any{nil, "b"}}},
			},
		},
		{
			name:    "pull single object",
			payload: map[string]any{"field": map[string]any{"remove": []any{map[string]any{"x": 1}}}},
			doc: map[string]any{
				"$pull": map[string]any{"field": map[string]any{"x": 1}},
			},
		},
		{
			name: "pull object alternatives",
			payload: map[string]any{"field": map[string]any{"remove": []any{
				map[string]any{"x": 1}, map[string]any{"x": 2},
			}}},
			doc: map[string]any{
				"$pull": map[string]any{"field": map[string]any{"$or": []any{
					map[string]any{"x": 1}, map[string]any{"x": 2},
				}}},
			},
		},
		{
			name:    "nested set",
			payload: map[string]any{"profile": map[string]any{"address": map[string]any{"city": "Pune"}}, "age": 4},
			doc: map[string]any{
				"$set": map[string]any{"profile.address.city": "Pune", "age": 4},
			},
		},
		{
			name:    "null unsets",
			payload: map[string]any{"profile": map[string]any{"nickname": nil}},
			doc: map[string]any{
				"$unset": map[string]any{"profile.nickname": ""},
			},
		},
		{
			name:    "arrays are set whole",
			payload: map[string]any{"tags": []any{"x", map[string]any{"add": []any{1}}}},
			doc: map[string]any{
				"$set": map[string]any{"tags": []any{"x", map[string]any{"add": []any{1}}}},
			},
		},
		{
			name:    "empty object is set",
			payload: map[string]any{"meta": map[string]any{}},
			doc: map[string]any{
				"$set": map[string]any{"meta": map[string]any{}},
			},
		},
		{
			name: "set and pull on one path",
			payload: map[string]any{
				"list": map[string]any{"add": []any{"n"}, "remove": []any{"o"}},
				"name": "z",
			},
			doc: map[string]any{
				"$set":  map[string]any{"name": "z"},
				"$push": map[string]any{"list": map[string]any{"$each": []any{"n"}}},
				"$pull": map[string]any{"list": map[string]any{"$in": []any{"o"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Compile(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.doc, u.Document())
			assert.Nil(t, u.ArrayFilters())
		})
	}
}

func TestCompilePositional(t *testing.T) {
	u, err := Compile(map[string]any{
		"items": map[string]any{
			"matchField":  "sku",
			"matchValue":  "X1",
			"removeField": "old",
			"addFields":   map[string]any{"price": 9},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []any{map[string]any{"elem.sku": "X1"}}, u.ArrayFilters())
	assert.Equal(t, map[string]any{
		"$set":   map[string]any{"items.$[elem].price": 9},
		"$unset": map[string]any{"items.$[elem].old": ""},
	}, u.Document())

	kinds := map[Kind]int{}
	for _, op := range u.Ops {
		kinds[op.Kind]++
	}
	assert.Equal(t, map[Kind]int{SetPositional: 1, Unset: 1}, kinds)
}

func TestCompilePositionalNoUnsetWhenReset(t *testing.T) {
	u, err := Compile(map[string]any{
		"items": map[string]any{
			"matchField":  "sku",
			"matchValue":  "X1",
			"removeField": "old",
			"addFields":   map[string]any{"price": 9, "old": "new"},
		},
	})
	require.NoError(t, err)

	doc := u.Document()
	assert.NotContains(t, doc, "$unset")
	assert.Equal(t, map[string]any{
		"items.$[elem].old":   "new",
		"items.$[elem].price": 9,
	}, doc["$set"])
	assert.Len(t, u.ArrayFilters(), 1)
}

func TestCompileDeduplicatesFilters(t *testing.T) {
	u, err := Compile(map[string]any{
		"a": map[string]any{"items": map[string]any{
			"matchField": "sku", "matchValue": "X1", "addFields": map[string]any{"p": 1},
		}},
		"b": map[string]any{"items": map[string]any{
			"matchField": "sku", "matchValue": "X1", "addFields": map[string]any{"p": 2},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []ArrayFilter{{Field: "sku", Value: "X1"}}, u.Filters)
}

func TestCompileMatchWithoutEdits(t *testing.T) {
	_, err := Compile(map[string]any{
		"items": map[string]any{"matchField": "sku", "matchValue": "X1"},
	})
	assert.ErrorIs(t, err, ErrEmptyUpdate)
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile(nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Compile([]any{1})
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Compile(map[string]any{})
	assert.ErrorIs(t, err, ErrEmptyUpdate)

	_, err = Compile(map[string]any{"f": map[string]any{"add": []any{}}})
	assert.ErrorIs(t, err, ErrEmptyUpdate)

	_, err = Compile(map[string]any{"f": map[string]any{"add": "x"}})
	assert.Error(t, err)

	_, err = Compile(map[string]any{"f": map[string]any{"remove": 3}})
	assert.Error(t, err)
}

func TestCompileDeterministic(t *testing.T) {
	payload := map[string]any{
		"z": 1,
		"a": map[string]any{"b": map[string]any{"c": 2}, "d": nil},
		"l": map[string]any{"add": []any{1}},
		"m": map[string]any{"remove": []any{map[string]any{"k": 1}}},
	}

	first, err := Compile(payload)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		next, err := Compile(payload)
		require.NoError(t, err)
		assert.Equal(t, first.Ops, next.Ops)
	}
}

func TestBucketsAreDisjoint(t *testing.T) {
	u, err := Compile(map[string]any{
		"a": 1,
		"b": nil,
		"c": map[string]any{"add": []any{1}},
		"d": map[string]any{"remove": []any{2}},
		"e": map[string]any{"x": map[string]any{"y": 3}},
	})
	require.NoError(t, err)

	seen := map[string]string{}
	for op, fields := range u.Document() {
		for path := range fields.(map[string]any) {
			prev, dup := seen[path]
			assert.False(t, dup, "path %s in %s and %s", path, prev, op)
			seen[path] = op
		}
	}
	assert.Len(t, seen, 5)
}

func TestIsDirective(t *testing.T) {
	assert.True(t, isDirective(map[string]any{"add": []any{}}))
	assert.True(t, isDirective(map[string]any{"removeField": "x"}))
	assert.True(t, isDirective(map[string]any{"matchField": "x"}))
	assert.False(t, isDirective(map[string]any{"city": "x"}))
}
