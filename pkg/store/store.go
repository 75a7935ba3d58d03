// Package store persists the collaboration features around process viewing:
// tags, saved processes, notes, search history, teams and sharing. Storage
// is a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound reports a lookup that matched nothing.
	ErrNotFound = errors.New("not found")

	// ErrForbidden reports an operation on a record the caller does not own.
	ErrForbidden = errors.New("forbidden")
)

// Every user-visible table soft-deletes through deletado_em (NULL = live),
// so records can be restored and uniqueness only binds live rows.
const schema = `
CREATE TABLE IF NOT EXISTS tags (
	id TEXT PRIMARY KEY,
	usuario TEXT NOT NULL,
	nome TEXT NOT NULL,
	cor TEXT NOT NULL DEFAULT '',
	criado_em INTEGER NOT NULL,
	deletado_em INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_tags_usuario_nome
	ON tags (usuario, nome) WHERE deletado_em IS NULL;

CREATE TABLE IF NOT EXISTS processo_tags (
	tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	numero_processo TEXT NOT NULL,
	PRIMARY KEY (tag_id, numero_processo)
);

CREATE TABLE IF NOT EXISTS processos_salvos (
	id TEXT PRIMARY KEY,
	usuario TEXT NOT NULL,
	numero_processo TEXT NOT NULL,
	anotacao TEXT NOT NULL DEFAULT '',
	criado_em INTEGER NOT NULL,
	deletado_em INTEGER
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_salvos_usuario_processo
	ON processos_salvos (usuario, numero_processo) WHERE deletado_em IS NULL;

CREATE TABLE IF NOT EXISTS observacoes (
	id TEXT PRIMARY KEY,
	usuario TEXT NOT NULL,
	numero_processo TEXT NOT NULL,
	texto TEXT NOT NULL,
	criado_em INTEGER NOT NULL,
	atualizado_em INTEGER NOT NULL,
	deletado_em INTEGER
);

CREATE TABLE IF NOT EXISTS historico_pesquisas (
	id TEXT PRIMARY KEY,
	usuario TEXT NOT NULL,
	termo TEXT NOT NULL,
	tipo TEXT NOT NULL DEFAULT '',
	criado_em INTEGER NOT NULL,
	deletado_em INTEGER
);

CREATE INDEX IF NOT EXISTS idx_historico_usuario
	ON historico_pesquisas (usuario, criado_em DESC);

CREATE TABLE IF NOT EXISTS equipes (
	id TEXT PRIMARY KEY,
	nome TEXT NOT NULL,
	descricao TEXT NOT NULL DEFAULT '',
	criador TEXT NOT NULL,
	criado_em INTEGER NOT NULL,
	deletado_em INTEGER
);

CREATE TABLE IF NOT EXISTS equipe_membros (
	equipe_id TEXT NOT NULL REFERENCES equipes(id) ON DELETE CASCADE,
	usuario TEXT NOT NULL,
	papel TEXT NOT NULL DEFAULT 'membro',
	deletado_em INTEGER,
	PRIMARY KEY (equipe_id, usuario)
);

CREATE TABLE IF NOT EXISTS compartilhamentos (
	id TEXT PRIMARY KEY,
	numero_processo TEXT NOT NULL,
	remetente TEXT NOT NULL,
	destinatario TEXT NOT NULL DEFAULT '',
	equipe_id TEXT NOT NULL DEFAULT '',
	mensagem TEXT NOT NULL DEFAULT '',
	criado_em INTEGER NOT NULL,
	deletado_em INTEGER
);
`

// Store provides SQLite-backed persistence for the collaboration features.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the SQLite store at path and creates the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
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

// Close releases the SQLite connection.
func (store *Store) Close() error {
	if store == nil || store.sqlDB == nil {
		return nil
	}
	return store.sqlDB.Close()
}

// Ping verifies the database connection.
func (store *Store) Ping(ctx context.Context) error {
	if store == nil || store.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return store.sqlDB.PingContext(ctx)
}

func (store *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if store == nil || store.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func nowMilli() int64 {
	return time.Now().UTC().UnixMilli()
}
