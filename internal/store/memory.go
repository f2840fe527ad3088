package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store used by tests across the engine,
// grounded on the same Get/Upsert/Search/GroupBy semantics as
// SQLiteStore but without touching disk.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Document // collection -> uid -> doc
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Document)}
}

func (s *MemoryStore) coll(collection string) map[string]Document {
	c, ok := s.data[collection]
	if !ok {
		c = make(map[string]Document)
		s.data[collection] = c
	}
	return c
}

func (s *MemoryStore) Get(_ context.Context, collection, uid string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[collection][uid]
	if !ok {
		return nil, nil
	}
	return cloneDoc(doc), nil
}

func (s *MemoryStore) Upsert(_ context.Context, collection string, doc Document) error {
	uid, _ := doc["uid"].(string)
	if uid == "" {
		return fmt.Errorf("document missing uid")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coll(collection)[uid] = cloneDoc(doc)
	return nil
}

func (s *MemoryStore) BulkUpsert(ctx context.Context, collection string, docs []Document) error {
	for _, doc := range docs {
		if err := s.Upsert(ctx, collection, doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Find(_ context.Context, collection string, filter Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, doc := range s.data[collection] {
		if matchesFilter(doc, filter) {
			out = append(out, cloneDoc(doc))
		}
	}
	return out, nil
}

func (s *MemoryStore) Search(_ context.Context, collection, text string, filter Filter, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(text)
	var out []Document
	for _, doc := range s.data[collection] {
		if !matchesFilter(doc, filter) {
			continue
		}
		title, _ := doc["title"].(string)
		hit := needle == "" || strings.Contains(strings.ToLower(title), needle)
		if !hit {
			if aliases, ok := doc["aliases"].([]string); ok {
				for _, a := range aliases {
					if strings.Contains(strings.ToLower(a), needle) {
						hit = true
						break
					}
				}
			}
		}
		if hit {
			out = append(out, cloneDoc(doc))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) GroupBy(ctx context.Context, collection string, spec GroupSpec) (map[string][]Document, error) {
	matches, err := s.Find(ctx, collection, spec.Filter)
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]Document)
	for _, doc := range matches {
		parts := make([]string, len(spec.Fields))
		for i, f := range spec.Fields {
			parts[i] = fmt.Sprintf("%v", doc[f])
		}
		key := strings.Join(parts, "|")
		groups[key] = append(groups[key], doc)
	}
	return groups, nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.coll(collection), uid)
	return nil
}

func (s *MemoryStore) EnsureIndexes(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func cloneDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
