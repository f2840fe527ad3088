// Package store abstracts the document store: persistence treated as
// an external collaborator, modeled here as an interface so the
// engine never depends on a concrete database.
//
// The reference implementation accesses a SQL database through
// database/sql rather than an ORM, backed by modernc.org/sqlite (pure
// Go, no cgo), with a document-shaped table standing in for a literal
// MongoDB dependency.
package store

import "context"

// Document is a generic JSON-shaped record keyed by uid.
type Document map[string]interface{}

// Filter is a set of equality constraints ANDed together; values may
// be scalars or, for OR-of-strings fields like alias matching, a
// []string understood by the implementation as "any of".
type Filter map[string]interface{}

// GroupSpec describes a GroupBy aggregation: group documents matching
// Filter by the listed Fields.
type GroupSpec struct {
	Filter Filter
	Fields []string
}

// Store is the document store interface: get, upsert, bulk-upsert,
// text search, aggregate group-by, delete.
type Store interface {
	// Get returns the document with the given uid, or (nil, nil) if absent.
	Get(ctx context.Context, collection, uid string) (Document, error)

	// Upsert writes doc keyed by doc["uid"], replacing any existing
	// record with the same uid.
	Upsert(ctx context.Context, collection string, doc Document) error

	// BulkUpsert upserts many documents, as the index scraper's
	// "$set minus _id, upsert=true" bulk write does per page.
	BulkUpsert(ctx context.Context, collection string, docs []Document) error

	// Search performs a title/alias substring/text match plus equality
	// filters, returning up to limit documents.
	Search(ctx context.Context, collection, text string, filter Filter, limit int) ([]Document, error)

	// Find returns every document matching filter exactly (used by
	// MediumGroup resolution: all Media sharing a group key).
	Find(ctx context.Context, collection string, filter Filter) ([]Document, error)

	// GroupBy aggregates matching documents by the given fields,
	// returning every matching Document per distinct field-value
	// tuple, keyed by a "|"-joined group key.
	GroupBy(ctx context.Context, collection string, spec GroupSpec) (map[string][]Document, error)

	// Delete removes the document with the given uid.
	Delete(ctx context.Context, collection, uid string) error

	// EnsureIndexes creates the text index over (title, aliases) and
	// the ascending index over (language, mediumType, dubbed) the index
	// scraper's cadences need, plus the sqlite-native analogues (FTS5
	// shadow table, composite index).
	EnsureIndexes(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}
