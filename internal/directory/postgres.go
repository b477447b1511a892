package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied on startup. Idempotent so restarts are safe.
const schema = `
CREATE TABLE IF NOT EXISTS persons (
	id          TEXT PRIMARY KEY,
	first       TEXT NOT NULL,
	last        TEXT NOT NULL,
	email       TEXT NOT NULL DEFAULT '',
	enabled     BOOLEAN NOT NULL DEFAULT FALSE,
	pin         TEXT NOT NULL DEFAULT '',
	pin_duress  TEXT NOT NULL DEFAULT '',
	active_date TIMESTAMPTZ,
	expire_date TIMESTAMPTZ,
	metadata    JSONB NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS persons_email_idx ON persons (email);
CREATE INDEX IF NOT EXISTS persons_name_idx ON persons (first, last);

CREATE TABLE IF NOT EXISTS credentials (
	id        TEXT PRIMARY KEY,
	type      TEXT NOT NULL,
	value     TEXT NOT NULL DEFAULT '',
	person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS credentials_person_idx ON credentials (person_id);

CREATE TABLE IF NOT EXISTS groups (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS group_memberships (
	group_id  TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
	PRIMARY KEY (group_id, person_id)
);
`

// PostgresRepository is the pgx-backed Repository implementation.
// pgxpool is safe for concurrent use, so row workers share one pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository over an existing pool and
// ensures the schema exists.
func NewPostgresRepository(ctx context.Context, pool *pgxpool.Pool) (*PostgresRepository, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) FindPerson(ctx context.Context, id, email string) (*Person, error) {
	const q = `
		SELECT id, first, last, email, enabled, pin, pin_duress, active_date, expire_date, metadata
		FROM persons
		WHERE ($1 <> '' AND id = $1) OR ($2 <> '' AND email = $2)
		ORDER BY (id = $1) DESC
		LIMIT 1`

	p, err := scanPerson(r.pool.QueryRow(ctx, q, id, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find person: %w", err)
	}
	if err := r.attach(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) CreatePerson(ctx context.Context, p *Person) (*Person, error) {
	stored := clonePerson(p)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Metadata == nil {
		stored.Metadata = make(map[string]string)
	}
	stored.Credentials = nil
	stored.Memberships = nil

	const q = `
		INSERT INTO persons (id, first, last, email, enabled, pin, pin_duress, active_date, expire_date, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, q,
		stored.ID, stored.First, stored.Last, stored.Email, stored.Enabled,
		stored.Pin, stored.PinDuress, stored.ActiveDate, stored.ExpireDate, stored.Metadata)
	if err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	return stored, nil
}

func (r *PostgresRepository) UpdatePerson(ctx context.Context, p *Person) error {
	const q = `
		UPDATE persons
		SET first = $2, last = $3, email = $4, enabled = $5, pin = $6,
		    pin_duress = $7, active_date = $8, expire_date = $9, metadata = $10
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q,
		p.ID, p.First, p.Last, p.Email, p.Enabled,
		p.Pin, p.PinDuress, p.ActiveDate, p.ExpireDate, p.Metadata)
	if err != nil {
		return fmt.Errorf("update person: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindPersonsByName(ctx context.Context, first, last string) ([]*Person, error) {
	const q = `
		SELECT id, first, last, email, enabled, pin, pin_duress, active_date, expire_date, metadata
		FROM persons
		WHERE first = $1 AND last = $2`

	rows, err := r.pool.Query(ctx, q, first, last)
	if err != nil {
		return nil, fmt.Errorf("find persons by name: %w", err)
	}
	defer rows.Close()

	var out []*Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("find persons by name: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateCredential(ctx context.Context, personID string, t CredentialType, value string) (*Credential, error) {
	c := &Credential{
		ID:       uuid.NewString(),
		Type:     t,
		Value:    value,
		PersonID: personID,
	}
	const q = `INSERT INTO credentials (id, type, value, person_id) VALUES ($1, $2, $3, $4)`
	if _, err := r.pool.Exec(ctx, q, c.ID, string(c.Type), c.Value, c.PersonID); err != nil {
		return nil, fmt.Errorf("create credential: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) DeleteCredentials(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `DELETE FROM credentials WHERE id = ANY($1)`
	if _, err := r.pool.Exec(ctx, q, ids); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindGroupsByName(ctx context.Context, names []string) ([]*Group, error) {
	if len(names) == 0 {
		return nil, nil
	}
	const q = `SELECT id, name FROM groups WHERE name = ANY($1)`

	rows, err := r.pool.Query(ctx, q, names)
	if err != nil {
		return nil, fmt.Errorf("find groups by name: %w", err)
	}
	defer rows.Close()

	var out []*Group
	for rows.Next() {
		g := &Group{}
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("find groups by name: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateGroup(ctx context.Context, name string) (*Group, error) {
	g := &Group{ID: uuid.NewString(), Name: name}
	const q = `INSERT INTO groups (id, name) VALUES ($1, $2)`
	if _, err := r.pool.Exec(ctx, q, g.ID, g.Name); err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return g, nil
}

func (r *PostgresRepository) CreateMembership(ctx context.Context, groupID, personID string) error {
	const q = `INSERT INTO group_memberships (group_id, person_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	if _, err := r.pool.Exec(ctx, q, groupID, personID); err != nil {
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

// attach loads the person's credentials and memberships.
func (r *PostgresRepository) attach(ctx context.Context, p *Person) error {
	credRows, err := r.pool.Query(ctx,
		`SELECT id, type, value, person_id FROM credentials WHERE person_id = $1`, p.ID)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	defer credRows.Close()
	for credRows.Next() {
		var c Credential
		var typ string
		if err := credRows.Scan(&c.ID, &typ, &c.Value, &c.PersonID); err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		c.Type = CredentialType(typ)
		p.Credentials = append(p.Credentials, c)
	}
	if err := credRows.Err(); err != nil {
		return err
	}

	memRows, err := r.pool.Query(ctx,
		`SELECT group_id, person_id FROM group_memberships WHERE person_id = $1`, p.ID)
	if err != nil {
		return fmt.Errorf("load memberships: %w", err)
	}
	defer memRows.Close()
	for memRows.Next() {
		var m GroupMembership
		if err := memRows.Scan(&m.GroupID, &m.PersonID); err != nil {
			return fmt.Errorf("load memberships: %w", err)
		}
		p.Memberships = append(p.Memberships, m)
	}
	return memRows.Err()
}

func scanPerson(row pgx.Row) (*Person, error) {
	p := &Person{}
	err := row.Scan(&p.ID, &p.First, &p.Last, &p.Email, &p.Enabled,
		&p.Pin, &p.PinDuress, &p.ActiveDate, &p.ExpireDate, &p.Metadata)
	if err != nil {
		return nil, err
	}
	return p, nil
}
