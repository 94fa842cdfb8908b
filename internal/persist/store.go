// Package persist keeps user defined methods in SQLite so they survive a
// restart. Builtins are never written.
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/engine"
	"github.com/funvibe/torrentrpc/internal/object"
)

var log = logging.Logger("persist")

const schema = `CREATE TABLE IF NOT EXISTS methods (
	position INTEGER NOT NULL,
	key      TEXT PRIMARY KEY,
	kind     TEXT NOT NULL,
	flags    TEXT NOT NULL,
	payload  TEXT NOT NULL
)`

const (
	kindObject   = "object"
	kindRedirect = "redirect"
)

// Store persists engine.Method records.
type Store struct {
	sqlDB *sql.DB

	// staged holds loaded methods not yet applied to an engine.
	staged []engine.Method
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A second connection to ":memory:" would see an empty database.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save replaces the stored methods with methods, keeping their order.
func (s *Store) Save(ctx context.Context, methods []engine.Method) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM methods`); err != nil {
		return fmt.Errorf("clear methods: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO methods (position, key, kind, flags, payload) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range methods {
		kind, flags, payload := kindRedirect, "", m.Redirect
		if !m.IsRedirect() {
			data, err := yaml.Marshal(object.ToGo(m.Value))
			if err != nil {
				return fmt.Errorf("encode %s: %w", m.Key, err)
			}
			kind, flags, payload = kindObject, engine.FormatObjectFlags(m.Flags), string(data)
		}
		if _, err := stmt.ExecContext(ctx, i, m.Key, kind, flags, payload); err != nil {
			return fmt.Errorf("insert %s: %w", m.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns the stored methods in their saved order.
func (s *Store) Load(ctx context.Context) ([]engine.Method, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT key, kind, flags, payload FROM methods ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query methods: %w", err)
	}
	defer rows.Close()

	var methods []engine.Method
	for rows.Next() {
		var key, kind, flags, payload string
		if err := rows.Scan(&key, &kind, &flags, &payload); err != nil {
			return nil, fmt.Errorf("scan method: %w", err)
		}
		m, err := decodeMethod(key, kind, flags, payload)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read methods: %w", err)
	}
	return methods, nil
}

func decodeMethod(key, kind, flags, payload string) (engine.Method, error) {
	switch kind {
	case kindRedirect:
		return engine.Method{Key: key, Redirect: payload}, nil
	case kindObject:
		f, err := engine.ParseObjectFlags(flags)
		if err != nil {
			return engine.Method{}, fmt.Errorf("method %s: %w", key, err)
		}
		var raw interface{}
		if err := yaml.Unmarshal([]byte(payload), &raw); err != nil {
			return engine.Method{}, fmt.Errorf("decode %s: %w", key, err)
		}
		v, err := object.FromGo(raw)
		if err != nil {
			return engine.Method{}, fmt.Errorf("decode %s: %w", key, err)
		}
		return engine.Method{Key: key, Flags: f, Value: v}, nil
	}
	return engine.Method{}, fmt.Errorf("method %s: unknown kind %q", key, kind)
}

// SaveEngine writes every user method of e and the staged methods whose
// names e does not use. Redirects go last so their destinations restore
// first.
func (s *Store) SaveEngine(ctx context.Context, e *engine.Engine) (int, error) {
	var objects, redirects []engine.Method
	add := func(m engine.Method) {
		if m.IsRedirect() {
			redirects = append(redirects, m)
		} else {
			objects = append(objects, m)
		}
	}
	for _, m := range e.UserMethods() {
		add(m)
	}
	for _, m := range s.staged {
		if !e.Commands().Has(m.Key) {
			add(m)
		}
	}
	methods := append(objects, redirects...)
	if err := s.Save(ctx, methods); err != nil {
		return 0, err
	}
	log.Debugf("saved %d methods", len(methods))
	return len(methods), nil
}

// Stage loads the stored methods without applying them. Until
// RestoreStaged runs they are carried over by SaveEngine.
func (s *Store) Stage(ctx context.Context) (int, error) {
	methods, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	s.staged = methods
	return len(methods), nil
}

// RestoreStaged recreates the staged methods on e. A method that no longer
// fits, for example because a builtin or a startup command now owns its
// name, is skipped with a warning.
func (s *Store) RestoreStaged(e *engine.Engine) int {
	methods := s.staged
	s.staged = nil

	restored := 0
	for _, m := range methods {
		if err := e.RestoreMethod(m); err != nil {
			log.Warnf("skipping saved method %s: %s", m.Key, err)
			continue
		}
		restored++
	}
	log.Infof("restored %d of %d saved methods", restored, len(methods))
	return restored
}

// RestoreEngine loads and recreates the stored methods on e.
func (s *Store) RestoreEngine(ctx context.Context, e *engine.Engine) (int, error) {
	if _, err := s.Stage(ctx); err != nil {
		return 0, err
	}
	return s.RestoreStaged(e), nil
}

// Install registers session.save_methods, which saves and returns the
// number of methods written.
func Install(e *engine.Engine, s *Store) error {
	return e.RegisterBuiltins(map[string]*engine.Builtin{
		config.SaveMethodsCommand: {
			Slot: command.Generic(func(command.Target, object.Value) (object.Value, error) {
				n, err := s.SaveEngine(context.Background(), e)
				if err != nil {
					return object.None(), command.NewInputError("Could not save methods: %s", err)
				}
				return object.Int(int64(n)), nil
			}),
			NoTarget: true,
		},
	})
}
