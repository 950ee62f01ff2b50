package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/VadimShubkin/ii/application/ports"
	"github.com/VadimShubkin/ii/domain/core/entities"
	"github.com/VadimShubkin/ii/infrastructure/persistence/sqlite/migrations"
	apperrors "github.com/VadimShubkin/ii/pkg/errors"
)

// Store is a SQLite-backed implementation of ports.Store
type Store struct {
	db   *sql.DB
	path string
}

var _ ports.Store = (*Store)(nil)

// NewStore opens (creating if needed) the database at path and migrates it
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// Open database with WAL mode for better concurrency
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs all pending migrations
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Entities ====================

const entityColumns = "uri, kind, name, fields, created_at, updated_at"

// Get retrieves an entity by kind and URI
func (s *Store) Get(ctx context.Context, kind entities.Kind, uri string) (entities.UID, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE uri = ?", uri)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && kind != "" && snap.Kind != kind) {
		return nil, apperrors.NewNotFoundError(string(kind) + " " + uri)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get entity", err)
	}
	return entities.FromSnapshot(snap)
}

// GetLike retrieves entities of a kind whose field matches the pattern, ordered by name
func (s *Store) GetLike(ctx context.Context, kind entities.Kind, field, pattern string, limit int) ([]entities.UID, error) {
	query := "SELECT " + entityColumns + " FROM entities WHERE kind = ?"
	args := []interface{}{string(kind)}

	// Only the name has a folded column; other fields are matched after the scan
	byName := field == "name"
	if byName {
		query += ` AND name_lower LIKE ? ESCAPE '\'`
		args = append(args, strings.ToLower(pattern))
	}
	query += " ORDER BY name, uri"
	if byName && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("query entities", err)
	}
	defer rows.Close()

	out := make([]entities.UID, 0)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan entity", err)
		}
		if !byName && !ports.MatchLike(pattern, snap.Field(field)) {
			continue
		}
		uid, err := entities.FromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, uid)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate entities", err)
	}
	return out, nil
}

// Save upserts an entity, keeping the original creation time
func (s *Store) Save(ctx context.Context, entity entities.UID) error {
	snap := entity.Snapshot()
	if snap.URI == "" {
		return apperrors.NewValidationError("entity uri is required")
	}

	fields, err := json.Marshal(snap.Fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}
	if snap.Fields == nil {
		fields = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (uri, kind, name, name_lower, fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			kind = excluded.kind,
			name = excluded.name,
			name_lower = excluded.name_lower,
			fields = excluded.fields,
			updated_at = excluded.updated_at
	`, snap.URI, string(snap.Kind), snap.Name, strings.ToLower(snap.Name), string(fields),
		toNanos(snap.CreatedAt), toNanos(snap.UpdatedAt))
	if err != nil {
		return apperrors.NewDatabaseError("save entity", err)
	}
	return nil
}

// Remove deletes an entity
func (s *Store) Remove(ctx context.Context, uri string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM entities WHERE uri = ?", uri); err != nil {
		return apperrors.NewDatabaseError("remove entity", err)
	}
	return nil
}

// ==================== Links ====================

const linkColumns = "id, kind, endpoint_a, endpoint_b, rate, comment, quote, created_at, updated_at"

// SaveLink upserts a link by id
func (s *Store) SaveLink(ctx context.Context, link *entities.Link) error {
	rec := link.Record()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO links (`+linkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			endpoint_a = excluded.endpoint_a,
			endpoint_b = excluded.endpoint_b,
			rate = excluded.rate,
			comment = excluded.comment,
			quote = excluded.quote,
			updated_at = excluded.updated_at
	`, rec.ID, string(rec.Kind), rec.EndpointA, rec.EndpointB,
		nullFloat(rec.Rate), nullString(rec.Comment), nullString(rec.Quote),
		toNanos(rec.CreatedAt), toNanos(rec.UpdatedAt))
	if err != nil {
		return apperrors.NewDatabaseError("save link", err)
	}
	return nil
}

// GetLink retrieves a link by id
func (s *Store) GetLink(ctx context.Context, id string) (*entities.Link, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+linkColumns+" FROM links WHERE id = ?", id)
	rec, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("link " + id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get link", err)
	}
	return entities.ReconstructLink(rec), nil
}

// LinksOf retrieves every link touching uri, oldest first
func (s *Store) LinksOf(ctx context.Context, uri string) ([]*entities.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+linkColumns+` FROM links
		WHERE endpoint_a = ? OR endpoint_b = ?
		ORDER BY created_at, id
	`, uri, uri)
	if err != nil {
		return nil, apperrors.NewDatabaseError("query links", err)
	}
	defer rows.Close()

	out := make([]*entities.Link, 0)
	for rows.Next() {
		rec, err := scanLink(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan link", err)
		}
		out = append(out, entities.ReconstructLink(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate links", err)
	}
	return out, nil
}

// RemoveLink deletes a link
func (s *Store) RemoveLink(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM links WHERE id = ?", id); err != nil {
		return apperrors.NewDatabaseError("remove link", err)
	}
	return nil
}

// ==================== Pending actions ====================

const pendingColumns = "id, action, command, payload, actor, status, moderator, error, created_at, updated_at"

// CreatePending persists a new pending action
func (s *Store) CreatePending(ctx context.Context, action *entities.PendingAction) error {
	if action == nil || action.ID == "" {
		return apperrors.NewValidationError("pending action id is required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_actions (`+pendingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, action.ID, action.Action, action.Command, string(action.Payload), action.Actor,
		string(action.Status), action.Moderator, action.Error,
		toNanos(action.CreatedAt), toNanos(action.UpdatedAt))
	if err != nil {
		return apperrors.NewDatabaseError("create pending action", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewConflictError("pending action " + action.ID + " already exists")
	}
	return nil
}

// GetPending retrieves a pending action by id
func (s *Store) GetPending(ctx context.Context, id string) (*entities.PendingAction, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+pendingColumns+" FROM pending_actions WHERE id = ?", id)
	pa, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("pending action " + id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("get pending action", err)
	}
	return pa, nil
}

// ListPending retrieves actions in a status, oldest first
func (s *Store) ListPending(ctx context.Context, status entities.PendingStatus, limit int) ([]*entities.PendingAction, error) {
	query := "SELECT " + pendingColumns + " FROM pending_actions"
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at, id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("query pending actions", err)
	}
	defer rows.Close()

	out := make([]*entities.PendingAction, 0)
	for rows.Next() {
		pa, err := scanPending(rows)
		if err != nil {
			return nil, apperrors.NewDatabaseError("scan pending action", err)
		}
		out = append(out, pa)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("iterate pending actions", err)
	}
	return out, nil
}

// TransitionPending moves an action between statuses with a conditional update
func (s *Store) TransitionPending(ctx context.Context, id string, from, to entities.PendingStatus, moderator, note string) (*entities.PendingAction, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_actions
		SET status = ?,
			moderator = CASE WHEN ? <> '' THEN ? ELSE moderator END,
			error = ?,
			updated_at = ?
		WHERE id = ? AND status = ?
	`, string(to), moderator, moderator, note, toNanos(time.Now().UTC()), id, string(from))
	if err != nil {
		return nil, apperrors.NewDatabaseError("transition pending action", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, apperrors.NewDatabaseError("transition pending action", err)
	}

	current, err := s.GetPending(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, apperrors.NewConflictError("pending action " + id + " is " + string(current.Status) + ", not " + string(from))
	}
	return current, nil
}

// ==================== Scanning ====================

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row scanner) (entities.Snapshot, error) {
	var (
		snap             entities.Snapshot
		kind, fields     string
		created, updated int64
	)
	if err := row.Scan(&snap.URI, &kind, &snap.Name, &fields, &created, &updated); err != nil {
		return entities.Snapshot{}, err
	}
	snap.Kind = entities.Kind(kind)
	snap.CreatedAt = fromNanos(created)
	snap.UpdatedAt = fromNanos(updated)
	if fields != "" && fields != "{}" && fields != "null" {
		if err := json.Unmarshal([]byte(fields), &snap.Fields); err != nil {
			return entities.Snapshot{}, fmt.Errorf("unmarshalling fields of %s: %w", snap.URI, err)
		}
	}
	return snap, nil
}

func scanLink(row scanner) (entities.LinkRecord, error) {
	var (
		rec              entities.LinkRecord
		kind             string
		rate             sql.NullFloat64
		comment, quote   sql.NullString
		created, updated int64
	)
	if err := row.Scan(&rec.ID, &kind, &rec.EndpointA, &rec.EndpointB, &rate, &comment, &quote, &created, &updated); err != nil {
		return entities.LinkRecord{}, err
	}
	rec.Kind = entities.LinkKind(kind)
	if rate.Valid {
		rec.Rate = &rate.Float64
	}
	if comment.Valid {
		rec.Comment = &comment.String
	}
	if quote.Valid {
		rec.Quote = &quote.String
	}
	rec.CreatedAt = fromNanos(created)
	rec.UpdatedAt = fromNanos(updated)
	return rec, nil
}

func scanPending(row scanner) (*entities.PendingAction, error) {
	var (
		pa               entities.PendingAction
		payload, status  string
		created, updated int64
	)
	if err := row.Scan(&pa.ID, &pa.Action, &pa.Command, &payload, &pa.Actor, &status,
		&pa.Moderator, &pa.Error, &created, &updated); err != nil {
		return nil, err
	}
	pa.Payload = json.RawMessage(payload)
	pa.Status = entities.PendingStatus(status)
	pa.CreatedAt = fromNanos(created)
	pa.UpdatedAt = fromNanos(updated)
	return &pa, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
