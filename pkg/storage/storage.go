// Package storage persists generated metadata documents to a
// deterministic on-disk layout: {base}/{db}/{schema}/{table}.json.
// Writes go through a temp-file-then-rename sequence so a reader never
// observes a partially written document.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/metadata-pipeline/metadatapipeline/pkg/apperrors"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
)

// Entry describes one stored document without loading its full body.
type Entry struct {
	Schema     string    `json:"schema"`
	Table      string    `json:"table"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Store reads and writes MetadataDocuments under a base directory.
type Store struct {
	baseDir string
}

// New returns a Store rooted at baseDir. The directory is created lazily
// on first write, not here.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Save implements jobs.DocumentStore, letting a Manager persist a
// completed generation without importing this package's full surface.
func (s *Store) Save(ctx context.Context, doc *models.MetadataDocument) error {
	return s.Write(ctx, doc.Database, doc.Schema, doc.Table, doc)
}

// Write atomically persists doc at {base}/{db}/{schema}/{table}.json.
func (s *Store) Write(ctx context.Context, db, schema, table string, doc *models.MetadataDocument) error {
	dir := filepath.Join(s.baseDir, sanitizeIdentifier(db), sanitizeIdentifier(schema))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.Wrap(apperrors.NotFound, fmt.Sprintf("create directory for %s", FullyQualifiedName(db, schema, table)), err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata document: %w", err)
	}

	targetPath := tablePath(dir, table)
	tmpPath := targetPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file into place: %w", err)
	}

	return nil
}

// Read loads the document for (db, schema, table). It returns an
// apperrors.NotFound error if no such document has been written.
func (s *Store) Read(ctx context.Context, db, schema, table string) (*models.MetadataDocument, error) {
	path := tablePath(filepath.Join(s.baseDir, sanitizeIdentifier(db), sanitizeIdentifier(schema)), table)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.New(apperrors.NotFound, fmt.Sprintf("no stored document for %s", FullyQualifiedName(db, schema, table)))
		}
		return nil, fmt.Errorf("read document: %w", err)
	}

	var doc models.MetadataDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return &doc, nil
}

// Delete removes the document for (db, schema, table). Deleting a
// document that does not exist is not an error.
func (s *Store) Delete(ctx context.Context, db, schema, table string) error {
	path := tablePath(filepath.Join(s.baseDir, sanitizeIdentifier(db), sanitizeIdentifier(schema)), table)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// List enumerates every stored document under db, across all its
// schemas, newest modification time last.
func (s *Store) List(ctx context.Context, db string) ([]Entry, error) {
	dbDir := filepath.Join(s.baseDir, sanitizeIdentifier(db))

	schemaDirs, err := os.ReadDir(dbDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list schemas under %s: %w", db, err)
	}

	var entries []Entry
	for _, schemaDir := range schemaDirs {
		if !schemaDir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(dbDir, schemaDir.Name()))
		if err != nil {
			return nil, fmt.Errorf("list tables under %s/%s: %w", db, schemaDir.Name(), err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			info, err := f.Info()
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", f.Name(), err)
			}
			entries = append(entries, Entry{
				Schema:     schemaDir.Name(),
				Table:      strings.TrimSuffix(f.Name(), ".json"),
				ModifiedAt: info.ModTime(),
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ModifiedAt.Before(entries[j].ModifiedAt)
	})
	return entries, nil
}

// FullyQualifiedName joins db, schema, and table the way error messages
// and logs reference a stored document.
func FullyQualifiedName(db, schema, table string) string {
	return fmt.Sprintf("%s.%s.%s", db, schema, table)
}

// ParsePath splits a path previously produced by Write's layout back
// into (db, schema, table). It expects exactly {db}/{schema}/{table}.json
// relative to a Store's base directory.
func ParsePath(relPath string) (db, schema, table string, err error) {
	relPath = filepath.ToSlash(relPath)
	parts := strings.Split(strings.Trim(relPath, "/"), "/")
	if len(parts) != 3 || !strings.HasSuffix(parts[2], ".json") {
		return "", "", "", fmt.Errorf("path %q is not in {db}/{schema}/{table}.json form", relPath)
	}
	return parts[0], parts[1], strings.TrimSuffix(parts[2], ".json"), nil
}

func tablePath(dir, table string) string {
	return filepath.Join(dir, sanitizeIdentifier(table)+".json")
}

var filesystemUnsafeChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "<", "_", ">", "_",
	"|", "_", "*", "_", "?", "_", "\"", "_",
)

// sanitizeIdentifier converts a database/schema/table name into a
// filesystem-safe path component: characters that are illegal or
// meaningful on common filesystems become underscores, and leading or
// trailing spaces and dots are trimmed (Windows rejects trailing dots
// and spaces; leading dots would otherwise create a hidden directory).
func sanitizeIdentifier(identifier string) string {
	safe := filesystemUnsafeChars.Replace(identifier)
	return strings.Trim(safe, " .")
}
