package records

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"hydrodiag/internal/diagnosis"
	"hydrodiag/internal/gateway/entity"
)

var (
	userColumns    = []string{"id", "name", "email", "login_method", "role", "created_at", "last_signed_in"}
	plantColumns   = []string{"id", "user_id", "image_url", "description", "crop_type", "temperature", "humidity", "ec", "result", "created_at"}
	sessionColumns = []string{"id", "user_id", "conversation_history", "final_diagnosis", "status", "created_at", "updated_at"}
)

// SQLStore persists records in Postgres (pgx) or SQLite (modernc) using ent's
// dialect-aware statement builder.
type SQLStore struct {
	db      *sql.DB
	dialect string

	schemaMu    sync.Mutex
	schemaReady atomic.Bool
}

const schemaTimeout = 30 * time.Second

// Open connects to driverName ("pgx" or "sqlite") and returns a store for it.
func Open(driverName, dsn string) (*SQLStore, error) {
	driverName = strings.TrimSpace(driverName)
	d, err := dialectFor(driverName)
	if err != nil {
		return nil, err
	}
	if driverName == "postgres" {
		driverName = "pgx"
	}
	db, err := sql.Open(driverName, strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if d == dialect.SQLite {
		// A single connection keeps in-memory databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}
	return NewSQLStore(db, d), nil
}

func NewSQLStore(db *sql.DB, d string) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

func dialectFor(driverName string) (string, error) {
	switch driverName {
	case "pgx", "postgres":
		return dialect.Postgres, nil
	case "sqlite":
		return dialect.SQLite, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driverName)
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the tables. Only success is remembered; after a
// failure the next call tries again.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("%w: db is nil", diagnosis.ErrStoreUnavailable)
	}
	if s.schemaReady.Load() {
		return nil
	}
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady.Load() {
		return nil
	}

	// Caller cancellation does not abort schema creation.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), schemaTimeout)
	defer cancel()
	for _, stmt := range schemaFor(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: create schema: %v", diagnosis.ErrStoreUnavailable, err)
		}
	}
	s.schemaReady.Store(true)
	return nil
}

func (s *SQLStore) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.dialect)
}

func (s *SQLStore) exec(ctx context.Context, query string, args []any) (sql.Result, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	return res, classify(err)
}

func (s *SQLStore) query(ctx context.Context, query string, args []any) (*sql.Rows, error) {
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	return rows, classify(err)
}

func (s *SQLStore) UpsertUser(ctx context.Context, u entity.User) error {
	if u.ID.IsZero() {
		return fmt.Errorf("user id is required")
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.LastSignedIn.IsZero() {
		u.LastSignedIn = now
	}
	if u.Role == "" {
		u.Role = entity.RoleUser
	}
	q, args := s.builder().Insert(tableUsers).
		Columns(userColumns...).
		Values(u.ID.String(), u.Name, u.Email, u.LoginMethod, string(u.Role), u.CreatedAt.UTC(), u.LastSignedIn.UTC()).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(set *entsql.UpdateSet) {
				set.SetExcluded("name")
				set.SetExcluded("email")
				set.SetExcluded("login_method")
				set.SetExcluded("role")
				set.SetExcluded("last_signed_in")
			}),
		).
		Query()
	_, err := s.exec(ctx, q, args)
	return err
}

func (s *SQLStore) GetUser(ctx context.Context, id entity.UserID) (entity.User, error) {
	b := s.builder()
	q, args := b.Select(userColumns...).
		From(b.Table(tableUsers)).
		Where(entsql.EQ("id", id.String())).
		Limit(1).
		Query()
	rows, err := s.query(ctx, q, args)
	if err != nil {
		return entity.User{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return entity.User{}, classify(err)
		}
		return entity.User{}, ErrNotFound
	}
	var (
		u       entity.User
		rawID   string
		rawRole string
	)
	if err := rows.Scan(&rawID, &u.Name, &u.Email, &u.LoginMethod, &rawRole, &u.CreatedAt, &u.LastSignedIn); err != nil {
		return entity.User{}, err
	}
	u.ID = entity.NormalizeUserID(rawID)
	u.Role = entity.Role(rawRole)
	u.CreatedAt = u.CreatedAt.UTC()
	u.LastSignedIn = u.LastSignedIn.UTC()
	return u, nil
}

func (s *SQLStore) SavePlantDiagnosis(ctx context.Context, d entity.PlantDiagnosis) error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("diagnosis id is required")
	}
	result, err := json.Marshal(d.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	q, args := s.builder().Insert(tablePlants).
		Columns(plantColumns...).
		Values(d.ID, d.UserID.String(), d.ImageURL, d.Description, d.CropType,
			nullFloat(d.Temperature), nullFloat(d.Humidity), nullFloat(d.EC),
			string(result), d.CreatedAt.UTC()).
		Query()
	_, err = s.exec(ctx, q, args)
	return err
}

func (s *SQLStore) ListPlantDiagnoses(ctx context.Context, userID entity.UserID) ([]entity.PlantDiagnosis, error) {
	b := s.builder()
	q, args := b.Select(plantColumns...).
		From(b.Table(tablePlants)).
		Where(entsql.EQ("user_id", userID.String())).
		OrderBy(entsql.Desc("created_at")).
		Query()
	rows, err := s.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]entity.PlantDiagnosis, 0, 8)
	for rows.Next() {
		var (
			d                  entity.PlantDiagnosis
			rawUser            string
			temp, humidity, ec sql.NullFloat64
			result             []byte
		)
		if err := rows.Scan(&d.ID, &rawUser, &d.ImageURL, &d.Description, &d.CropType,
			&temp, &humidity, &ec, &result, &d.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(result, &d.Result); err != nil {
			return nil, fmt.Errorf("decode plant diagnosis %s: %w", d.ID, err)
		}
		d.UserID = entity.NormalizeUserID(rawUser)
		d.Temperature = floatPtr(temp)
		d.Humidity = floatPtr(humidity)
		d.EC = floatPtr(ec)
		d.CreatedAt = d.CreatedAt.UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (s *SQLStore) CreateEquipmentSession(ctx context.Context, sess entity.EquipmentSession) error {
	if strings.TrimSpace(sess.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	history, final, err := encodeSession(sess)
	if err != nil {
		return err
	}
	q, args := s.builder().Insert(tableSessions).
		Columns(sessionColumns...).
		Values(sess.ID, sess.UserID.String(), history, final, string(sess.Status), sess.CreatedAt.UTC(), sess.UpdatedAt.UTC()).
		Query()
	_, err = s.exec(ctx, q, args)
	return err
}

func (s *SQLStore) UpdateEquipmentSession(ctx context.Context, sess entity.EquipmentSession) error {
	history, final, err := encodeSession(sess)
	if err != nil {
		return err
	}
	q, args := s.builder().Update(tableSessions).
		Set("conversation_history", history).
		Set("final_diagnosis", final).
		Set("status", string(sess.Status)).
		Set("updated_at", sess.UpdatedAt.UTC()).
		Where(entsql.EQ("id", sess.ID)).
		Query()
	res, err := s.exec(ctx, q, args)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) GetEquipmentSession(ctx context.Context, id string) (entity.EquipmentSession, error) {
	b := s.builder()
	q, args := b.Select(sessionColumns...).
		From(b.Table(tableSessions)).
		Where(entsql.EQ("id", strings.TrimSpace(id))).
		Limit(1).
		Query()
	rows, err := s.query(ctx, q, args)
	if err != nil {
		return entity.EquipmentSession{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return entity.EquipmentSession{}, classify(err)
		}
		return entity.EquipmentSession{}, ErrNotFound
	}
	return scanSession(rows)
}

func (s *SQLStore) ListEquipmentSessions(ctx context.Context, userID entity.UserID) ([]entity.EquipmentSession, error) {
	b := s.builder()
	q, args := b.Select(sessionColumns...).
		From(b.Table(tableSessions)).
		Where(entsql.EQ("user_id", userID.String())).
		OrderBy(entsql.Desc("updated_at")).
		Query()
	rows, err := s.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]entity.EquipmentSession, 0, 8)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func scanSession(rows *sql.Rows) (entity.EquipmentSession, error) {
	var (
		sess      entity.EquipmentSession
		rawUser   string
		rawStatus string
		history   []byte
		final     []byte
	)
	if err := rows.Scan(&sess.ID, &rawUser, &history, &final, &rawStatus, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return entity.EquipmentSession{}, err
	}
	if err := json.Unmarshal(history, &sess.ConversationHistory); err != nil {
		return entity.EquipmentSession{}, fmt.Errorf("decode history of %s: %w", sess.ID, err)
	}
	if len(final) > 0 && string(final) != "null" {
		var d entity.EquipmentDiagnosis
		if err := json.Unmarshal(final, &d); err != nil {
			return entity.EquipmentSession{}, fmt.Errorf("decode final diagnosis of %s: %w", sess.ID, err)
		}
		sess.FinalDiagnosis = &d
	}
	sess.UserID = entity.NormalizeUserID(rawUser)
	sess.Status = entity.SessionStatus(rawStatus)
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()
	return sess, nil
}

func encodeSession(sess entity.EquipmentSession) (string, any, error) {
	turns := sess.ConversationHistory
	if turns == nil {
		turns = []entity.Turn{}
	}
	history, err := json.Marshal(turns)
	if err != nil {
		return "", nil, fmt.Errorf("encode history: %w", err)
	}
	if sess.FinalDiagnosis == nil {
		return string(history), nil, nil
	}
	final, err := json.Marshal(sess.FinalDiagnosis)
	if err != nil {
		return "", nil, fmt.Errorf("encode final diagnosis: %w", err)
	}
	return string(history), string(final), nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// classify marks connection-level failures as store unavailability.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var opErr *net.OpError
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", diagnosis.ErrStoreUnavailable, err)
	}
	return err
}
