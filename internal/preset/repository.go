package preset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/regsync/internal/register"
)

// Repository persists presets.
type Repository interface {
	// Save inserts or replaces a preset and all of its values atomically.
	Save(ctx context.Context, p *Preset) error
	Get(ctx context.Context, name string) (*Preset, error)
	List(ctx context.Context) ([]Summary, error)
	// Delete returns ErrNotFound when the name is absent.
	Delete(ctx context.Context, name string) error
}

// SQLiteRepository stores presets in the presets and preset_values tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a preset repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save replaces any existing preset of the same name. The original creation
// time is kept on replacement.
func (r *SQLiteRepository) Save(ctx context.Context, p *Preset) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting preset transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO presets (name, scope, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET scope = excluded.scope, updated_at = excluded.updated_at`,
		p.Name, string(p.Scope),
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
		p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting preset: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM preset_values WHERE preset_name = ?", p.Name); err != nil {
		return fmt.Errorf("clearing preset values: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO preset_values (preset_name, bank, address, value) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing preset values insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range p.Entries {
		if _, err := stmt.ExecContext(ctx, p.Name, int(e.Bank), int(e.Address), int(e.Value)); err != nil {
			return fmt.Errorf("inserting %s %s: %w", e.Bank, e.Address.Hex(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing preset: %w", err)
	}
	return nil
}

// Get loads a preset with its values.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (*Preset, error) {
	p := &Preset{Name: name}
	var scope, createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT scope, created_at, updated_at FROM presets WHERE name = ?", name,
	).Scan(&scope, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("querying preset: %w", err)
	}
	p.Scope = Scope(scope)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT bank, address, value FROM preset_values WHERE preset_name = ? ORDER BY bank, address", name)
	if err != nil {
		return nil, fmt.Errorf("querying preset values: %w", err)
	}
	defer rows.Close()

	p.Entries = []Entry{}
	for rows.Next() {
		var bank, addr, value int
		if err := rows.Scan(&bank, &addr, &value); err != nil {
			return nil, fmt.Errorf("scanning preset value: %w", err)
		}
		b, err := register.BankFromInt(bank)
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
		a, err := register.AddressFromInt(int64(addr))
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
		v, err := register.ValueFromInt(int64(value))
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", name, err)
		}
		p.Entries = append(p.Entries, Entry{Bank: b, Address: a, Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating preset values: %w", err)
	}
	return p, nil
}

// List returns every preset summary ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.name, p.scope, p.created_at, p.updated_at, COUNT(v.address)
		FROM presets p LEFT JOIN preset_values v ON v.preset_name = p.name
		GROUP BY p.name ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("listing presets: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var s Summary
		var scope, createdAt, updatedAt string
		if err := rows.Scan(&s.Name, &scope, &createdAt, &updatedAt, &s.Count); err != nil {
			return nil, fmt.Errorf("scanning preset: %w", err)
		}
		s.Scope = Scope(scope)
		if s.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating presets: %w", err)
	}
	return out, nil
}

// Delete removes a preset; its values go with it (ON DELETE CASCADE).
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM presets WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting preset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing preset timestamp %q: %w", s, err)
	}
	return t, nil
}
