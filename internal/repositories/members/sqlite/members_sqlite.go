package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	r "github.com/quipper/poc/membercard/pkg/repositories/members"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteRepo struct {
	db *sql.DB
	q  queryer
	// now is swapped in tests.
	now func() time.Time
}

// Ensure interface compliance
var (
	_ r.Repository = (*SQLiteRepo)(nil)
	_ r.Tx         = (*txRepo)(nil)
)

// NewSQLiteRepo opens the database at path and creates the schema.
// Transactions take the write lock up front and the pool holds a single
// connection, so member number assignment never interleaves.
func NewSQLiteRepo(path string) (*SQLiteRepo, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already opened handle. The schema is not touched.
func NewWithDB(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db, q: db, now: func() time.Time { return time.Now().UTC() }}
}

func dsn(path string) string {
	params := "_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

// Migrate creates the members table if missing.
func Migrate(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS members (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  external_id TEXT NOT NULL UNIQUE,
	  name TEXT NOT NULL,
	  region TEXT NOT NULL,
	  email TEXT,
	  phone_number TEXT,
	  member_number TEXT NOT NULL UNIQUE,
	  created_at TIMESTAMP NOT NULL,
	  updated_at TIMESTAMP NOT NULL
	);
	`)
	return err
}

func (s *SQLiteRepo) Disconnect() { _ = s.db.Close() }

func (s *SQLiteRepo) Health(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteRepo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx r.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &txRepo{SQLiteRepo: &SQLiteRepo{db: s.db, q: tx, now: s.now}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// txRepo exposes the transactional subset of the store.
type txRepo struct{ *SQLiteRepo }

func (t *txRepo) MaxMemberSequence(ctx context.Context) (int, error) {
	var seq sql.NullInt64
	err := t.q.QueryRowContext(ctx, `SELECT MAX(CAST(SUBSTR(member_number, 2) AS INTEGER)) FROM members`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return int(seq.Int64), nil
}

// A free suffix is either 1 or one past a suffix in use.
const lowestFreeQuery = `
SELECT MIN(c.n) FROM (
	SELECT 1 AS n
	UNION ALL
	SELECT CAST(SUBSTR(member_number, 2) AS INTEGER) + 1 FROM members
) c
WHERE c.n <= ? AND NOT EXISTS (
	SELECT 1 FROM members m WHERE CAST(SUBSTR(m.member_number, 2) AS INTEGER) = c.n
)`

func (t *txRepo) LowestFreeSequence(ctx context.Context, limit int) (int, error) {
	var seq sql.NullInt64
	if err := t.q.QueryRowContext(ctx, lowestFreeQuery, limit).Scan(&seq); err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return int(seq.Int64), nil
}

const memberColumns = `external_id, name, region, email, phone_number, member_number, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMember(row scanner) (*r.Member, error) {
	var m r.Member
	var email, phone sql.NullString
	if err := row.Scan(&m.ExternalID, &m.Name, &m.Region, &email, &phone, &m.MemberNumber, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Email = email.String
	m.PhoneNumber = phone.String
	return &m, nil
}

func (s *SQLiteRepo) findOne(ctx context.Context, where string, arg string) (*r.Member, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE `+where+` = ?`, arg)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.ErrNotFound
	}
	return m, err
}

func (s *SQLiteRepo) FindByExternalID(ctx context.Context, externalID string) (*r.Member, error) {
	return s.findOne(ctx, "external_id", externalID)
}

func (s *SQLiteRepo) FindByMemberNumber(ctx context.Context, memberNumber string) (*r.Member, error) {
	return s.findOne(ctx, "member_number", memberNumber)
}

func (s *SQLiteRepo) Insert(ctx context.Context, m *r.Member) error {
	now := s.now()
	_, err := s.q.ExecContext(ctx, `
	INSERT INTO members (`+memberColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ExternalID, m.Name, m.Region, nullIfEmpty(m.Email), nullIfEmpty(m.PhoneNumber), m.MemberNumber, now, now)
	if err != nil {
		return translate(err)
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

func (s *SQLiteRepo) UpdateProfile(ctx context.Context, externalID string, f r.ProfileUpdate) error {
	var sets []string
	var args []any
	add := func(col string, v *string, nullable bool) {
		if v == nil {
			return
		}
		sets = append(sets, col+" = ?")
		if nullable {
			args = append(args, nullIfEmpty(*v))
		} else {
			args = append(args, *v)
		}
	}
	add("name", f.Name, false)
	add("region", f.Region, false)
	add("email", f.Email, true)
	add("phone_number", f.PhoneNumber, true)
	add("member_number", f.MemberNumber, false)
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now(), externalID)

	res, err := s.q.ExecContext(ctx, `UPDATE members SET `+strings.Join(sets, ", ")+` WHERE external_id = ?`, args...)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return r.ErrNotFound
	}
	return nil
}

func (s *SQLiteRepo) ListAll(ctx context.Context) ([]*r.Member, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (s *SQLiteRepo) ListPage(ctx context.Context, offset, limit int) ([]*r.Member, int, error) {
	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func collect(rows *sql.Rows) ([]*r.Member, error) {
	defer rows.Close()
	var out []*r.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// translate maps unique constraint failures onto the store sentinels.
func translate(err error) error {
	msg := err.Error()
	var se *sqlite.Error
	unique := errors.As(err, &se) && (se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
	if !unique && !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "members.member_number"):
		return fmt.Errorf("%w: %v", r.ErrDuplicateMemberNumber, err)
	case strings.Contains(msg, "members.external_id"):
		return fmt.Errorf("%w: %v", r.ErrDuplicateExternalID, err)
	default:
		return fmt.Errorf("%w: %v", r.ErrConstraintViolation, err)
	}
}
