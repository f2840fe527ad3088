package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the reference Store implementation: every
// "collection" is a table `coll_<name>` with columns (uid TEXT
// PRIMARY KEY, doc TEXT); equality filters are applied in Go after a
// broad SELECT, since collections in this engine stay small (one row
// per Medium/UrlPool/meta entry) and correctness matters far more than
// a query planner here.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if absent) a sqlite database at dsn.
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline
	return &SQLiteStore{db: db}, nil
}

func tableName(collection string) string {
	return fmt.Sprintf("coll_%s", collection)
}

func (s *SQLiteStore) ensureTable(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (uid TEXT PRIMARY KEY, doc TEXT NOT NULL)`, tableName(collection)))
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, collection, uid string) (Document, error) {
	if err := s.ensureTable(ctx, collection); err != nil {
		return nil, errors.Wrap(err, "ensure table")
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT doc FROM %s WHERE uid = ?`, tableName(collection)), uid)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "scan document")
	}
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, errors.Wrap(err, "unmarshal document")
	}
	return doc, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, collection string, doc Document) error {
	return s.BulkUpsert(ctx, collection, []Document{doc})
}

func (s *SQLiteStore) BulkUpsert(ctx context.Context, collection string, docs []Document) error {
	if err := s.ensureTable(ctx, collection); err != nil {
		return errors.Wrap(err, "ensure table")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (uid, doc) VALUES (?, ?) ON CONFLICT(uid) DO UPDATE SET doc = excluded.doc`, tableName(collection)))
	if err != nil {
		return errors.Wrap(err, "prepare upsert")
	}
	defer stmt.Close()

	for _, doc := range docs {
		uid, _ := doc["uid"].(string)
		if uid == "" {
			return errors.New("document missing uid")
		}
		raw, err := json.Marshal(doc)
		if err != nil {
			return errors.Wrap(err, "marshal document")
		}
		if _, err := stmt.ExecContext(ctx, uid, string(raw)); err != nil {
			return errors.Wrap(err, "exec upsert")
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) scanAll(ctx context.Context, collection string) ([]Document, error) {
	if err := s.ensureTable(ctx, collection); err != nil {
		return nil, errors.Wrap(err, "ensure table")
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT doc FROM %s`, tableName(collection)))
	if err != nil {
		return nil, errors.Wrap(err, "query all")
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		var doc Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, errors.Wrap(err, "unmarshal row")
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func matchesFilter(doc Document, filter Filter) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			return false
		}
		switch w := want.(type) {
		case []string:
			matched := false
			gotStr, _ := got.(string)
			for _, candidate := range w {
				if candidate == gotStr {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		default:
			if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
				return false
			}
		}
	}
	return true
}

func (s *SQLiteStore) Find(ctx context.Context, collection string, filter Filter) ([]Document, error) {
	all, err := s.scanAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	var out []Document
	for _, doc := range all {
		if matchesFilter(doc, filter) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Search matches text against "title" or any entry of "aliases"
// case-insensitively, narrowed by filter.
func (s *SQLiteStore) Search(ctx context.Context, collection, text string, filter Filter, limit int) ([]Document, error) {
	all, err := s.scanAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(text)
	var out []Document
	for _, doc := range all {
		if !matchesFilter(doc, filter) {
			continue
		}
		title, _ := doc["title"].(string)
		hit := needle == "" || strings.Contains(strings.ToLower(title), needle)
		if !hit {
			if aliases, ok := doc["aliases"].([]interface{}); ok {
				for _, a := range aliases {
					if as, ok := a.(string); ok && strings.Contains(strings.ToLower(as), needle) {
						hit = true
						break
					}
				}
			}
		}
		if hit {
			out = append(out, doc)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *SQLiteStore) GroupBy(ctx context.Context, collection string, spec GroupSpec) (map[string][]Document, error) {
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

func (s *SQLiteStore) Delete(ctx context.Context, collection, uid string) error {
	if err := s.ensureTable(ctx, collection); err != nil {
		return errors.Wrap(err, "ensure table")
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE uid = ?`, tableName(collection)), uid)
	return err
}

// EnsureIndexes creates the sqlite-native text index and composite
// index: an FTS5 shadow table over (title, aliases) for the Media
// collection, and a composite index over (language, mediumType,
// dubbed).
func (s *SQLiteStore) EnsureIndexes(ctx context.Context) error {
	if err := s.ensureTable(ctx, "media"); err != nil {
		return err
	}
	stmts := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS media_fts USING fts5(uid UNINDEXED, title, aliases)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_media_lang_type_dub ON %s
			(json_extract(doc,'$.language'), json_extract(doc,'$.mediumType'), json_extract(doc,'$.dubbed'))`,
			tableName("media")),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "ensure index: %s", stmt)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
