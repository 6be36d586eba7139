package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const hexID = "64b7f0c2a1b2c3d4e5f60718"

func TestCoerceIDs(t *testing.T) {
	oid, err := bson.ObjectIDFromHex(hexID)
	require.NoError(t, err)

	in := map[string]any{
		"ownerId": hexID,
		"name":    "not-an-id",
		"nested":  map[string]any{"ref": map[string]any{"$oid": hexID}},
		"list":    []any{hexID, 3, "short"},
	}

	out := CoerceIDs(in).(map[string]any)
	assert.Equal(t, oid, out["ownerId"])
	assert.Equal(t, "not-an-id", out["name"])
	assert.Equal(t, oid, out["nested"].(map[string]any)["ref"])
	assert.Equal(t, []any{oid, 3, "short"}, out["list"])

	// input untouched
	assert.Equal(t, hexID, in["ownerId"])
}

func TestCoerceFilter(t *testing.T) {
	oid, _ := bson.ObjectIDFromHex(hexID)

	tests := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "id equality",
			in:   map[string]any{"_id": hexID},
			want: map[string]any{"_id": map[string]any{"$in": []any{hexID, oid}}},
		},
		{
			name: "suffix id equality",
			in:   map[string]any{"userId": hexID},
			want: map[string]any{"userId": map[string]any{"$in": []any{hexID, oid}}},
		},
		{
			name: "non hex id",
			in:   map[string]any{"_id": "abc"},
			want: map[string]any{"_id": "abc"},
		},
		{
			name: "in list",
			in:   map[string]any{"_id": map[string]any{"$in": []any{hexID, "abc"}}},
			want: map[string]any{"_id": map[string]any{"$in": []any{hexID, oid, "abc"}}},
		},
		{
			name: "not equal",
			in:   map[string]any{"_id": map[string]any{"$ne": hexID}},
			want: map[string]any{"_id": map[string]any{"$nin": []any{hexID, oid}}},
		},
		{
			name: "logical",
			in:   map[string]any{"$or": []any{map[string]any{"_id": hexID}, map[string]any{"x": 1}}},
			want: map[string]any{"$or": []any{
				map[string]any{"_id": map[string]any{"$in": []any{hexID, oid}}},
				map[string]any{"x": 1},
			}},
		},
		{
			name: "other hex promoted",
			in:   map[string]any{"ref": hexID},
			want: map[string]any{"ref": oid},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceFilter(tt.in))
		})
	}
}

func TestCanonicalID(t *testing.T) {
	oid, _ := bson.ObjectIDFromHex(hexID)

	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"  abc ", "abc"},
		{oid, hexID},
		{map[string]any{"$oid": hexID}, hexID},
		{42, "42"},
		{int64(7), "7"},
		{float64(12), "12"},
	}
	for _, tt := range tests {
		got, err := canonicalID(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := canonicalID([]any{1})
	assert.Equal(t, ErrValidation, KindOf(err))
}

func TestIDFilter(t *testing.T) {
	oid, _ := bson.ObjectIDFromHex(hexID)

	f, err := idFilter(hexID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"_id": map[string]any{"$in": []any{hexID, oid}}}, f)

	f, err = idFilter("doc-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"_id": map[string]any{"$in": []any{"doc-1"}}}, f)

	_, err = idFilter(" ")
	assert.Equal(t, ErrValidation, KindOf(err))
}
