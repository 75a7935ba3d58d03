package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SearchEntry is one recorded search. Deleted entries are kept for restore
// and only hidden from listings.
type SearchEntry struct {
	ID       string `json:"id"`
	Usuario  string `json:"usuario"`
	Termo    string `json:"termo"`
	Tipo     string `json:"tipo,omitempty"`
	CriadoEm int64  `json:"criado_em"`
}

// TermCount is one entry of the most-searched-terms ranking.
type TermCount struct {
	Termo       string `json:"termo"`
	Ocorrencias int    `json:"ocorrencias"`
}

// SearchStats summarizes a user's search history.
type SearchStats struct {
	Total            int         `json:"total"`
	TermosFrequentes []TermCount `json:"termos_frequentes"`
}

// RecordSearch appends a search to the user's history.
func (store *Store) RecordSearch(ctx context.Context, usuario, termo, tipo string) (SearchEntry, error) {
	if err := store.ready(ctx); err != nil {
		return SearchEntry{}, err
	}
	usuario = strings.TrimSpace(usuario)
	termo = strings.TrimSpace(termo)
	if usuario == "" {
		return SearchEntry{}, fmt.Errorf("usuario is required")
	}
	if termo == "" {
		return SearchEntry{}, fmt.Errorf("termo is required")
	}

	entry := SearchEntry{
		ID:       uuid.NewString(),
		Usuario:  usuario,
		Termo:    termo,
		Tipo:     strings.TrimSpace(tipo),
		CriadoEm: nowMilli(),
	}
	_, err := store.sqlDB.ExecContext(ctx, `
INSERT INTO historico_pesquisas (id, usuario, termo, tipo, criado_em)
VALUES (?, ?, ?, ?, ?)
`, entry.ID, entry.Usuario, entry.Termo, entry.Tipo, entry.CriadoEm)
	if err != nil {
		return SearchEntry{}, fmt.Errorf("record search: %w", err)
	}
	return entry, nil
}

// ListSearches pages through a user's visible history, newest first.
func (store *Store) ListSearches(ctx context.Context, usuario string, limit, offset int) ([]SearchEntry, error) {
	if err := store.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := store.sqlDB.QueryContext(ctx, `
SELECT id, usuario, termo, tipo, criado_em
FROM historico_pesquisas
WHERE usuario = ? AND deletado_em IS NULL
ORDER BY criado_em DESC, id DESC
LIMIT ? OFFSET ?
`, strings.TrimSpace(usuario), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list searches: %w", err)
	}
	defer rows.Close()

	entries := []SearchEntry{}
	for rows.Next() {
		var entry SearchEntry
		if err := rows.Scan(&entry.ID, &entry.Usuario, &entry.Termo, &entry.Tipo, &entry.CriadoEm); err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate searches: %w", err)
	}
	return entries, nil
}

// DeleteSearch soft-deletes one history entry.
func (store *Store) DeleteSearch(ctx context.Context, usuario, entryID string) error {
	return store.setSearchDeleted(ctx, usuario, entryID, true)
}

// RestoreSearch brings a soft-deleted entry back.
func (store *Store) RestoreSearch(ctx context.Context, usuario, entryID string) error {
	return store.setSearchDeleted(ctx, usuario, entryID, false)
}

func (store *Store) setSearchDeleted(ctx context.Context, usuario, entryID string, deleted bool) error {
	if err := store.ready(ctx); err != nil {
		return err
	}
	var result sql.Result
	var err error
	if deleted {
		result, err = store.sqlDB.ExecContext(ctx, `
UPDATE historico_pesquisas SET deletado_em = ?
WHERE id = ? AND usuario = ? AND deletado_em IS NULL
`, nowMilli(), strings.TrimSpace(entryID), strings.TrimSpace(usuario))
	} else {
		result, err = store.sqlDB.ExecContext(ctx, `
UPDATE historico_pesquisas SET deletado_em = NULL
WHERE id = ? AND usuario = ? AND deletado_em IS NOT NULL
`, strings.TrimSpace(entryID), strings.TrimSpace(usuario))
	}
	if err != nil {
		return fmt.Errorf("update search entry: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearSearches soft-deletes a user's entire visible history and returns
// how many entries were affected.
func (store *Store) ClearSearches(ctx context.Context, usuario string) (int, error) {
	if err := store.ready(ctx); err != nil {
		return 0, err
	}

	result, err := store.sqlDB.ExecContext(ctx, `
UPDATE historico_pesquisas SET deletado_em = ?
WHERE usuario = ? AND deletado_em IS NULL
`, nowMilli(), strings.TrimSpace(usuario))
	if err != nil {
		return 0, fmt.Errorf("clear searches: %w", err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

// Stats summarizes the visible history: total count and the five most
// frequent terms.
func (store *Store) Stats(ctx context.Context, usuario string) (SearchStats, error) {
	if err := store.ready(ctx); err != nil {
		return SearchStats{}, err
	}
	usuario = strings.TrimSpace(usuario)

	stats := SearchStats{TermosFrequentes: []TermCount{}}
	err := store.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(*) FROM historico_pesquisas WHERE usuario = ? AND deletado_em IS NULL
`, usuario).Scan(&stats.Total)
	if err != nil {
		return SearchStats{}, fmt.Errorf("count searches: %w", err)
	}

	rows, err := store.sqlDB.QueryContext(ctx, `
SELECT termo, COUNT(*) AS ocorrencias
FROM historico_pesquisas
WHERE usuario = ? AND deletado_em IS NULL
GROUP BY termo
ORDER BY ocorrencias DESC, termo
LIMIT 5
`, usuario)
	if err != nil {
		return SearchStats{}, fmt.Errorf("rank terms: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var count TermCount
		if err := rows.Scan(&count.Termo, &count.Ocorrencias); err != nil {
			return SearchStats{}, fmt.Errorf("scan term count: %w", err)
		}
		stats.TermosFrequentes = append(stats.TermosFrequentes, count)
	}
	if err := rows.Err(); err != nil {
		return SearchStats{}, fmt.Errorf("iterate term counts: %w", err)
	}
	return stats, nil
}
