package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/coolbeans/seiview/pkg/processo"
)

// Tag is a user-owned label applicable to processes.
type Tag struct {
	ID       string `json:"id"`
	Usuario  string `json:"usuario"`
	Nome     string `json:"nome"`
	Cor      string `json:"cor,omitempty"`
	CriadoEm int64  `json:"criado_em"`
}

// CreateTag creates a tag for a user. Tag names are unique per user.
func (store *Store) CreateTag(ctx context.Context, usuario, nome, cor string) (Tag, error) {
	if err := store.ready(ctx); err != nil {
		return Tag{}, err
	}
	usuario = strings.TrimSpace(usuario)
	nome = strings.TrimSpace(nome)
	if usuario == "" {
		return Tag{}, fmt.Errorf("usuario is required")
	}
	if nome == "" {
		return Tag{}, fmt.Errorf("nome is required")
	}

	tag := Tag{
		ID:       uuid.NewString(),
		Usuario:  usuario,
		Nome:     nome,
		Cor:      strings.TrimSpace(cor),
		CriadoEm: nowMilli(),
	}
	_, err := store.sqlDB.ExecContext(ctx, `
INSERT INTO tags (id, usuario, nome, cor, criado_em)
VALUES (?, ?, ?, ?, ?)
`, tag.ID, tag.Usuario, tag.Nome, tag.Cor, tag.CriadoEm)
	if err != nil {
		return Tag{}, fmt.Errorf("create tag: %w", err)
	}
	return tag, nil
}

// ListTags lists a user's tags, alphabetically.
func (store *Store) ListTags(ctx context.Context, usuario string) ([]Tag, error) {
	if err := store.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := store.sqlDB.QueryContext(ctx, `
SELECT id, usuario, nome, cor, criado_em
FROM tags
WHERE usuario = ? AND deletado_em IS NULL
ORDER BY nome
`, strings.TrimSpace(usuario))
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []Tag{}
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Usuario, &tag.Nome, &tag.Cor, &tag.CriadoEm); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// UpdateTag renames or recolors a tag. Only the owner may update it.
func (store *Store) UpdateTag(ctx context.Context, usuario, tagID, nome, cor string) (Tag, error) {
	if err := store.ready(ctx); err != nil {
		return Tag{}, err
	}
	tag, err := store.tagByID(ctx, tagID)
	if err != nil {
		return Tag{}, err
	}
	if tag.Usuario != strings.TrimSpace(usuario) {
		return Tag{}, ErrForbidden
	}
	nome = strings.TrimSpace(nome)
	if nome == "" {
		return Tag{}, fmt.Errorf("nome is required")
	}

	tag.Nome = nome
	tag.Cor = strings.TrimSpace(cor)
	_, err = store.sqlDB.ExecContext(ctx, `
UPDATE tags SET nome = ?, cor = ? WHERE id = ?
`, tag.Nome, tag.Cor, tag.ID)
	if err != nil {
		return Tag{}, fmt.Errorf("update tag: %w", err)
	}
	return tag, nil
}

// DeleteTag soft-deletes a tag. Its process assignments stay in place but
// stop resolving until the name is created again. Owner only.
func (store *Store) DeleteTag(ctx context.Context, usuario, tagID string) error {
	if err := store.ready(ctx); err != nil {
		return err
	}
	tag, err := store.tagByID(ctx, tagID)
	if err != nil {
		return err
	}
	if tag.Usuario != strings.TrimSpace(usuario) {
		return ErrForbidden
	}
	_, err = store.sqlDB.ExecContext(ctx, `
UPDATE tags SET deletado_em = ? WHERE id = ? AND deletado_em IS NULL
`, nowMilli(), tag.ID)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

// TagProcess applies one of the user's tags to a process. Re-applying is a
// no-op.
func (store *Store) TagProcess(ctx context.Context, usuario, tagID, numeroProcesso string) error {
	if err := store.ready(ctx); err != nil {
		return err
	}
	tag, err := store.tagByID(ctx, tagID)
	if err != nil {
		return err
	}
	if tag.Usuario != strings.TrimSpace(usuario) {
		return ErrForbidden
	}
	numero := processo.Normalize(numeroProcesso)
	if numero == "" {
		return fmt.Errorf("numero_processo is required")
	}

	_, err = store.sqlDB.ExecContext(ctx, `
INSERT INTO processo_tags (tag_id, numero_processo)
VALUES (?, ?)
ON CONFLICT (tag_id, numero_processo) DO NOTHING
`, tag.ID, numero)
	if err != nil {
		return fmt.Errorf("tag process: %w", err)
	}
	return nil
}

// UntagProcess removes a tag from a process. Owner only.
func (store *Store) UntagProcess(ctx context.Context, usuario, tagID, numeroProcesso string) error {
	if err := store.ready(ctx); err != nil {
		return err
	}
	tag, err := store.tagByID(ctx, tagID)
	if err != nil {
		return err
	}
	if tag.Usuario != strings.TrimSpace(usuario) {
		return ErrForbidden
	}

	result, err := store.sqlDB.ExecContext(ctx, `
DELETE FROM processo_tags WHERE tag_id = ? AND numero_processo = ?
`, tag.ID, processo.Normalize(numeroProcesso))
	if err != nil {
		return fmt.Errorf("untag process: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ProcessTags lists the user's tags applied to a process.
func (store *Store) ProcessTags(ctx context.Context, usuario, numeroProcesso string) ([]Tag, error) {
	if err := store.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := store.sqlDB.QueryContext(ctx, `
SELECT t.id, t.usuario, t.nome, t.cor, t.criado_em
FROM tags t
JOIN processo_tags pt ON pt.tag_id = t.id
WHERE t.usuario = ? AND pt.numero_processo = ? AND t.deletado_em IS NULL
ORDER BY t.nome
`, strings.TrimSpace(usuario), processo.Normalize(numeroProcesso))
	if err != nil {
		return nil, fmt.Errorf("list process tags: %w", err)
	}
	defer rows.Close()

	tags := []Tag{}
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Usuario, &tag.Nome, &tag.Cor, &tag.CriadoEm); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

func (store *Store) tagByID(ctx context.Context, tagID string) (Tag, error) {
	var tag Tag
	err := store.sqlDB.QueryRowContext(ctx, `
SELECT id, usuario, nome, cor, criado_em FROM tags WHERE id = ? AND deletado_em IS NULL
`, strings.TrimSpace(tagID)).Scan(&tag.ID, &tag.Usuario, &tag.Nome, &tag.Cor, &tag.CriadoEm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tag{}, ErrNotFound
		}
		return Tag{}, fmt.Errorf("load tag: %w", err)
	}
	return tag, nil
}
