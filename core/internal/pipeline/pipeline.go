// Package pipeline builds ordered aggregation pipelines for reads and the
// matching count pipelines.
package pipeline

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	DefaultSortField = "_id"
	CountField       = "total"
)

var ErrInvalidJoin = errors.New("invalid join")

// Join describes one $lookup stage and its optional $unwind
type Join struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
	Unwind       bool

	// PreserveNulls keeps documents without a match when unwinding.
	// Nil means true.
	PreserveNulls *bool

	// Filter restricts the joined documents. It is sent as the lookup's
	// sub-pipeline next to localField and foreignField (MongoDB 5.0+).
	Filter map[string]any
}

// Query is a read over one collection
type Query struct {
	Filter     map[string]any
	Joins      []Join
	Projection map[string]any
	SortBy     string
	Descending bool
	Skip       int64
	Limit      int64
}

// Build returns the stages in the fixed order
// match, lookups, project, sort, skip, limit
func Build(q Query) ([]bson.D, error) {
	if err := validateJoins(q.Joins); err != nil {
		return nil, err
	}

	var stages []bson.D

	if len(q.Filter) != 0 {
		stages = append(stages, stage("$match", q.Filter))
	}

	stages = appendJoins(stages, q.Joins)

	if len(q.Projection) != 0 {
		stages = append(stages, stage("$project", q.Projection))
	}

	stages = append(stages, stage("$sort", sortDoc(q.SortBy, q.Descending)))

	if q.Skip > 0 {
		stages = append(stages, stage("$skip", q.Skip))
	}
	if q.Limit > 0 {
		stages = append(stages, stage("$limit", q.Limit))
	}
	return stages, nil
}

// BuildCount returns a pipeline counting the documents the filter and
// joins of q produce, ignoring paging. The single result document holds
// the total under CountField.
func BuildCount(q Query) ([]bson.D, error) {
	if err := validateJoins(q.Joins); err != nil {
		return nil, err
	}

	var stages []bson.D

	if len(q.Filter) != 0 {
		stages = append(stages, stage("$match", q.Filter))
	}

	stages = appendJoins(stages, q.Joins)
	stages = append(stages, stage("$count", CountField))
	return stages, nil
}

// CountResult reads the total out of the documents returned by a count
// pipeline. No documents means nothing matched.
func CountResult(docs []map[string]any) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	switch v := docs[0][CountField].(type) {
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected count value %v (%T)", v, v)
	}
}

func appendJoins(stages []bson.D, joins []Join) []bson.D {
	for _, j := range joins {
		lookup := bson.D{
			{Key: "from", Value: j.From},
			{Key: "localField", Value: j.LocalField},
			{Key: "foreignField", Value: j.ForeignField},
		}
		if len(j.Filter) != 0 {
			lookup = append(lookup, bson.E{Key: "pipeline", Value: bson.A{stage("$match", j.Filter)}})
		}
		lookup = append(lookup, bson.E{Key: "as", Value: j.As})
		stages = append(stages, stage("$lookup", lookup))

		if !j.Unwind {
			continue
		}

		preserve := true
		if j.PreserveNulls != nil {
			preserve = *j.PreserveNulls
		}
		stages = append(stages, stage("$unwind", bson.D{
			{Key: "path", Value: "$" + j.As},
			{Key: "preserveNullAndEmptyArrays", Value: preserve},
		}))
	}
	return stages
}

func validateJoins(joins []Join) error {
	for i, j := range joins {
		var missing string
		switch {
		case j.From == "":
			missing = "from"
		case j.LocalField == "":
			missing = "localField"
		case j.ForeignField == "":
			missing = "foreignField"
		case j.As == "":
			missing = "as"
		default:
			continue
		}
		return fmt.Errorf("%w: lookup %d (%s) is missing '%s'", ErrInvalidJoin, i, name(j), missing)
	}
	return nil
}

func name(j Join) string {
	switch {
	case j.As != "":
		return j.As
	case j.From != "":
		return j.From
	}
	return "unnamed"
}

func sortDoc(field string, desc bool) bson.D {
	if field == "" {
		field = DefaultSortField
	}
	order := 1
	if desc {
		order = -1
	}
	return bson.D{{Key: field, Value: order}}
}

func stage(op string, v any) bson.D {
	return bson.D{{Key: op, Value: v}}
}
