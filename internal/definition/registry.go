package definition

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	_ "modernc.org/sqlite"
)

var ErrAgentNotFound = errors.New("agent not found")

// Registry stores named agent definitions in SQLite
type Registry struct {
	db *sql.DB
}

// Summary is the listing form of a registered agent
type Summary struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OpenRegistry opens or creates the registry database at path
func OpenRegistry(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	r := &Registry{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return r, nil
}

func (r *Registry) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		name TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		definition TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Close closes the database connection
func (r *Registry) Close() error {
	return r.db.Close()
}

// Put registers def under its name, replacing any previous definition
func (r *Registry) Put(ctx context.Context, def *Agent) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if !ValidName(def.Name) {
		return fmt.Errorf("%w: %s", ErrInvalidIdentifier, def.Name)
	}

	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode definition: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO agents (name, description, definition, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			definition = excluded.definition,
			updated_at = excluded.updated_at`,
		def.Name, def.Description, string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to store agent: %w", err)
	}
	return nil
}

// Lookup returns the definition registered under name. The built-in
// default agent resolves even when it was never registered.
func (r *Registry) Lookup(ctx context.Context, name string) (*Agent, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `SELECT definition FROM agents WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		if name == DefaultName {
			return Default(), nil
		}
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query agent: %w", err)
	}
	return Parse([]byte(data))
}

// List returns registered agents ordered by name
func (r *Registry) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name, description, updated_at FROM agents ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Name, &s.Description, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a registered agent
func (r *Registry) Delete(ctx context.Context, name string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM agents WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return nil
}

// Resolve loads the agent an identifier refers to
func Resolve(ctx context.Context, fs afero.Fs, r *Registry, id Identifier) (*Agent, error) {
	if id.Path != "" {
		return Load(fs, id.Path)
	}
	if r == nil {
		if id.Name == DefaultName {
			return Default(), nil
		}
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id.Name)
	}
	return r.Lookup(ctx, id.Name)
}
