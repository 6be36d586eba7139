package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/patel-ankitb/nestproject-sub000/mongodriver"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// memStore is an in-memory Store understanding the subset of filters and
// stages the engine produces.
type memStore struct {
	mu          sync.Mutex
	colls       map[string][]map[string]any
	pipelines   [][]bson.D
	counts      []map[string]any
	updates     []memUpdate
	reads       int
	countErr    error
	countAggErr error
	closed      bool
}

type memUpdate struct {
	coll         string
	filter       map[string]any
	update       map[string]any
	arrayFilters []any
}

func newMemStore() *memStore {
	return &memStore{colls: map[string][]map[string]any{}}
}

func (s *memStore) put(coll string, docs ...map[string]any) *memStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colls[coll] = append(s.colls[coll], docs...)
	return s
}

func (s *memStore) Aggregate(_ context.Context, coll string, stages []bson.D) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pipelines = append(s.pipelines, stages)
	s.reads++

	docs := append([]map[string]any(nil), s.colls[coll]...)
	for _, st := range stages {
		op, arg := st[0].Key, st[0].Value
		switch op {
		case "$match":
			docs = filterDocs(docs, arg.(map[string]any))
		case "$sort":
			sd := arg.(bson.D)
			field, dir := sd[0].Key, sd[0].Value.(int)
			sort.SliceStable(docs, func(i, j int) bool {
				a, b := fmt.Sprint(docs[i][field]), fmt.Sprint(docs[j][field])
				if dir < 0 {
					return a > b
				}
				return a < b
			})
		case "$skip":
			n := int(arg.(int64))
			if n > len(docs) {
				n = len(docs)
			}
			docs = docs[n:]
		case "$limit":
			if n := int(arg.(int64)); n < len(docs) {
				docs = docs[:n]
			}
		case "$count":
			if s.countAggErr != nil {
				return nil, s.countAggErr
			}
			if len(docs) == 0 {
				return nil, nil
			}
			return []map[string]any{{arg.(string): int32(len(docs))}}, nil
		case "$lookup", "$unwind", "$project":
		default:
			return nil, fmt.Errorf("unsupported stage %s", op)
		}
	}
	return docs, nil
}

func (s *memStore) Count(_ context.Context, coll string, filter map[string]any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts = append(s.counts, filter)
	s.reads++
	if s.countErr != nil {
		return 0, s.countErr
	}
	return int64(len(filterDocs(s.colls[coll], filter))), nil
}

func (s *memStore) FindOne(_ context.Context, coll string, filter map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads++
	docs := filterDocs(s.colls[coll], filter)
	if len(docs) == 0 {
		return nil, mongodriver.ErrNotFound
	}
	return docs[0], nil
}

func (s *memStore) UpdateOne(_ context.Context, coll string, filter, update map[string]any,
	arrayFilters []any,
) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates = append(s.updates, memUpdate{coll, filter, update, arrayFilters})
	if len(filterDocs(s.colls[coll], filter)) == 0 {
		return 0, 0, nil
	}
	return 1, 1, nil
}

func (s *memStore) InsertOne(_ context.Context, coll string, doc map[string]any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.colls[coll] = append(s.colls[coll], doc)
	return doc["_id"], nil
}

func (s *memStore) HasCollection(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.colls[name]
	return ok, nil
}

func (s *memStore) Ping(context.Context) error { return nil }

func (s *memStore) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStore) lastPipeline() []bson.D {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pipelines) == 0 {
		return nil
	}
	return s.pipelines[len(s.pipelines)-1]
}

func filterDocs(docs []map[string]any, filter map[string]any) []map[string]any {
	var out []map[string]any
	for _, d := range docs {
		if matches(d, filter) {
			out = append(out, d)
		}
	}
	return out
}

func matches(doc, filter map[string]any) bool {
	for k, v := range filter {
		switch k {
		case "$or":
			ok := false
			for _, f := range v.([]any) {
				if matches(doc, f.(map[string]any)) {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		case "$and":
			for _, f := range v.([]any) {
				if !matches(doc, f.(map[string]any)) {
					return false
				}
			}
		default:
			if !matchValue(doc[k], v) {
				return false
			}
		}
	}
	return true
}

func matchValue(val, cond any) bool {
	m, ok := cond.(map[string]any)
	if !ok {
		return reflect.DeepEqual(val, cond)
	}
	for op, arg := range m {
		switch op {
		case "$in":
			found := false
			for _, a := range arg.([]any) {
				if reflect.DeepEqual(val, a) {
					found = true
				}
			}
			if !found {
				return false
			}
		case "$regex":
			pat := arg.(string)
			if opt, _ := m["$options"].(string); opt == "i" {
				pat = "(?i)" + pat
			}
			s, _ := val.(string)
			if !regexp.MustCompile(pat).MatchString(s) {
				return false
			}
		case "$options":
		default:
			return reflect.DeepEqual(val, cond)
		}
	}
	return true
}

// memDialer hands out one memStore per database and counts dials
type memDialer struct {
	mu     sync.Mutex
	stores map[string]*memStore
	dials  atomic.Int32
	fails  atomic.Int32
	gate   chan struct{}
}

var errDial = errors.New("dial failed")

func newMemDialer() *memDialer {
	return &memDialer{stores: map[string]*memStore{}}
}

func (d *memDialer) add(dbName string, st *memStore) *memDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stores[dbName] = st
	return d
}

func (d *memDialer) dial(c context.Context, _, dbName string) (Store, error) {
	d.dials.Add(1)

	if d.gate != nil {
		select {
		case <-d.gate:
		case <-c.Done():
			return nil, c.Err()
		}
	}

	if d.fails.Load() > 0 {
		d.fails.Add(-1)
		return nil, errDial
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.stores[dbName]
	if !ok {
		return nil, errDial
	}
	return st, nil
}
