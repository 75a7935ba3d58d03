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

// Note is a user's private annotation on a process.
type Note struct {
	ID             string `json:"id"`
	Usuario        string `json:"usuario"`
	NumeroProcesso string `json:"numero_processo"`
	Texto          string `json:"texto"`
	CriadoEm       int64  `json:"criado_em"`
	AtualizadoEm   int64  `json:"atualizado_em"`
}

// CreateNote adds a note to a process.
func (store *Store) CreateNote(ctx context.Context, usuario, numeroProcesso, texto string) (Note, error) {
	if err := store.ready(ctx); err != nil {
		return Note{}, err
	}
	usuario = strings.TrimSpace(usuario)
	numero := processo.Normalize(numeroProcesso)
	texto = strings.TrimSpace(texto)
	if usuario == "" {
		return Note{}, fmt.Errorf("usuario is required")
	}
	if numero == "" {
		return Note{}, fmt.Errorf("numero_processo is required")
	}
	if texto == "" {
		return Note{}, fmt.Errorf("texto is required")
	}

	now := nowMilli()
	note := Note{
		ID:             uuid.NewString(),
		Usuario:        usuario,
		NumeroProcesso: numero,
		Texto:          texto,
		CriadoEm:       now,
		AtualizadoEm:   now,
	}
	_, err := store.sqlDB.ExecContext(ctx, `
INSERT INTO observacoes (id, usuario, numero_processo, texto, criado_em, atualizado_em)
VALUES (?, ?, ?, ?, ?, ?)
`, note.ID, note.Usuario, note.NumeroProcesso, note.Texto, note.CriadoEm, note.AtualizadoEm)
	if err != nil {
		return Note{}, fmt.Errorf("create note: %w", err)
	}
	return note, nil
}

// ListNotes lists a user's notes on a process, oldest first.
func (store *Store) ListNotes(ctx context.Context, usuario, numeroProcesso string) ([]Note, error) {
	if err := store.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := store.sqlDB.QueryContext(ctx, `
SELECT id, usuario, numero_processo, texto, criado_em, atualizado_em
FROM observacoes
WHERE usuario = ? AND numero_processo = ? AND deletado_em IS NULL
ORDER BY criado_em, id
`, strings.TrimSpace(usuario), processo.Normalize(numeroProcesso))
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.Usuario, &note.NumeroProcesso, &note.Texto, &note.CriadoEm, &note.AtualizadoEm); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// UpdateNote replaces a note's text. Only the author may update it.
func (store *Store) UpdateNote(ctx context.Context, usuario, noteID, texto string) (Note, error) {
	if err := store.ready(ctx); err != nil {
		return Note{}, err
	}
	note, err := store.noteByID(ctx, noteID)
	if err != nil {
		return Note{}, err
	}
	if note.Usuario != strings.TrimSpace(usuario) {
		return Note{}, ErrForbidden
	}
	texto = strings.TrimSpace(texto)
	if texto == "" {
		return Note{}, fmt.Errorf("texto is required")
	}

	note.Texto = texto
	note.AtualizadoEm = nowMilli()
	_, err = store.sqlDB.ExecContext(ctx, `
UPDATE observacoes SET texto = ?, atualizado_em = ? WHERE id = ?
`, note.Texto, note.AtualizadoEm, note.ID)
	if err != nil {
		return Note{}, fmt.Errorf("update note: %w", err)
	}
	return note, nil
}

// DeleteNote removes a note. Only the author may delete it.
func (store *Store) DeleteNote(ctx context.Context, usuario, noteID string) error {
	if err := store.ready(ctx); err != nil {
		return err
	}
	note, err := store.noteByID(ctx, noteID)
	if err != nil {
		return err
	}
	if note.Usuario != strings.TrimSpace(usuario) {
		return ErrForbidden
	}
	_, err = store.sqlDB.ExecContext(ctx, `
UPDATE observacoes SET deletado_em = ? WHERE id = ? AND deletado_em IS NULL
`, nowMilli(), note.ID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

func (store *Store) noteByID(ctx context.Context, noteID string) (Note, error) {
	var note Note
	err := store.sqlDB.QueryRowContext(ctx, `
SELECT id, usuario, numero_processo, texto, criado_em, atualizado_em
FROM observacoes WHERE id = ? AND deletado_em IS NULL
`, strings.TrimSpace(noteID)).Scan(&note.ID, &note.Usuario, &note.NumeroProcesso, &note.Texto, &note.CriadoEm, &note.AtualizadoEm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Note{}, ErrNotFound
		}
		return Note{}, fmt.Errorf("load note: %w", err)
	}
	return note, nil
}
