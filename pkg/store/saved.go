package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/coolbeans/seiview/pkg/processo"
)

// SavedProcess is a process a user bookmarked, with an optional annotation.
type SavedProcess struct {
	ID             string `json:"id"`
	Usuario        string `json:"usuario"`
	NumeroProcesso string `json:"numero_processo"`
	Anotacao       string `json:"anotacao,omitempty"`
	CriadoEm       int64  `json:"criado_em"`
}

// SaveProcess bookmarks a process for a user. Saving an already-saved
// process updates its annotation.
func (store *Store) SaveProcess(ctx context.Context, usuario, numeroProcesso, anotacao string) (SavedProcess, error) {
	if err := store.ready(ctx); err != nil {
		return SavedProcess{}, err
	}
	usuario = strings.TrimSpace(usuario)
	numero := processo.Normalize(numeroProcesso)
	if usuario == "" {
		return SavedProcess{}, fmt.Errorf("usuario is required")
	}
	if numero == "" {
		return SavedProcess{}, fmt.Errorf("numero_processo is required")
	}

	saved := SavedProcess{
		ID:             uuid.NewString(),
		Usuario:        usuario,
		NumeroProcesso: numero,
		Anotacao:       strings.TrimSpace(anotacao),
		CriadoEm:       nowMilli(),
	}

	tx, err := store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return SavedProcess{}, fmt.Errorf("save process: %w", err)
	}
	defer tx.Rollback()

	// Re-saving updates the live bookmark's annotation and keeps its
	// original id and creation time.
	result, err := tx.ExecContext(ctx, `
UPDATE processos_salvos SET anotacao = ?
WHERE usuario = ? AND numero_processo = ? AND deletado_em IS NULL
`, saved.Anotacao, usuario, numero)
	if err != nil {
		return SavedProcess{}, fmt.Errorf("save process: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected > 0 {
		err = tx.QueryRowContext(ctx, `
SELECT id, criado_em FROM processos_salvos
WHERE usuario = ? AND numero_processo = ? AND deletado_em IS NULL
`, usuario, numero).Scan(&saved.ID, &saved.CriadoEm)
		if err != nil {
			return SavedProcess{}, fmt.Errorf("load saved process: %w", err)
		}
	} else {
		_, err = tx.ExecContext(ctx, `
INSERT INTO processos_salvos (id, usuario, numero_processo, anotacao, criado_em)
VALUES (?, ?, ?, ?, ?)
`, saved.ID, saved.Usuario, saved.NumeroProcesso, saved.Anotacao, saved.CriadoEm)
		if err != nil {
			return SavedProcess{}, fmt.Errorf("save process: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return SavedProcess{}, fmt.Errorf("save process: %w", err)
	}
	return saved, nil
}

// ListSavedProcesses lists a user's bookmarks, newest first.
func (store *Store) ListSavedProcesses(ctx context.Context, usuario string) ([]SavedProcess, error) {
	if err := store.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := store.sqlDB.QueryContext(ctx, `
SELECT id, usuario, numero_processo, anotacao, criado_em
FROM processos_salvos
WHERE usuario = ? AND deletado_em IS NULL
ORDER BY criado_em DESC, id DESC
`, strings.TrimSpace(usuario))
	if err != nil {
		return nil, fmt.Errorf("list saved processes: %w", err)
	}
	defer rows.Close()

	saved := []SavedProcess{}
	for rows.Next() {
		var entry SavedProcess
		if err := rows.Scan(&entry.ID, &entry.Usuario, &entry.NumeroProcesso, &entry.Anotacao, &entry.CriadoEm); err != nil {
			return nil, fmt.Errorf("scan saved process: %w", err)
		}
		saved = append(saved, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved processes: %w", err)
	}
	return saved, nil
}

// DeleteSavedProcess removes a bookmark.
func (store *Store) DeleteSavedProcess(ctx context.Context, usuario, numeroProcesso string) error {
	if err := store.ready(ctx); err != nil {
		return err
	}

	result, err := store.sqlDB.ExecContext(ctx, `
UPDATE processos_salvos SET deletado_em = ?
WHERE usuario = ? AND numero_processo = ? AND deletado_em IS NULL
`, nowMilli(), strings.TrimSpace(usuario), processo.Normalize(numeroProcesso))
	if err != nil {
		return fmt.Errorf("delete saved process: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
