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

// Share grants another user or a whole team visibility of a process. Exactly
// one of Destinatario or EquipeID is set.
type Share struct {
	ID             string `json:"id"`
	NumeroProcesso string `json:"numero_processo"`
	Remetente      string `json:"remetente"`
	Destinatario   string `json:"destinatario,omitempty"`
	EquipeID       string `json:"equipe_id,omitempty"`
	Mensagem       string `json:"mensagem,omitempty"`
	CriadoEm       int64  `json:"criado_em"`
}

// ShareWithUser shares a process directly with another user.
func (store *Store) ShareWithUser(ctx context.Context, remetente, numeroProcesso, destinatario, mensagem string) (Share, error) {
	if err := store.ready(ctx); err != nil {
		return Share{}, err
	}
	remetente = strings.TrimSpace(remetente)
	destinatario = strings.TrimSpace(destinatario)
	numero := processo.Normalize(numeroProcesso)
	if remetente == "" {
		return Share{}, fmt.Errorf("remetente is required")
	}
	if destinatario == "" {
		return Share{}, fmt.Errorf("destinatario is required")
	}
	if destinatario == remetente {
		return Share{}, fmt.Errorf("cannot share a process with yourself")
	}
	if numero == "" {
		return Share{}, fmt.Errorf("numero_processo is required")
	}

	share := Share{
		ID:             uuid.NewString(),
		NumeroProcesso: numero,
		Remetente:      remetente,
		Destinatario:   destinatario,
		Mensagem:       strings.TrimSpace(mensagem),
		CriadoEm:       nowMilli(),
	}
	_, err := store.sqlDB.ExecContext(ctx, `
INSERT INTO compartilhamentos (id, numero_processo, remetente, destinatario, equipe_id, mensagem, criado_em)
VALUES (?, ?, ?, ?, '', ?, ?)
`, share.ID, share.NumeroProcesso, share.Remetente, share.Destinatario, share.Mensagem, share.CriadoEm)
	if err != nil {
		return Share{}, fmt.Errorf("share with user: %w", err)
	}
	return share, nil
}

// ShareWithTeam shares a process with a team the sender belongs to.
func (store *Store) ShareWithTeam(ctx context.Context, remetente, numeroProcesso, teamID, mensagem string) (Share, error) {
	if err := store.ready(ctx); err != nil {
		return Share{}, err
	}
	remetente = strings.TrimSpace(remetente)
	numero := processo.Normalize(numeroProcesso)
	if remetente == "" {
		return Share{}, fmt.Errorf("remetente is required")
	}
	if numero == "" {
		return Share{}, fmt.Errorf("numero_processo is required")
	}
	team, err := store.teamByID(ctx, teamID)
	if err != nil {
		return Share{}, err
	}
	if _, ok := memberRole(team, remetente); !ok {
		return Share{}, ErrForbidden
	}

	share := Share{
		ID:             uuid.NewString(),
		NumeroProcesso: numero,
		Remetente:      remetente,
		EquipeID:       team.ID,
		Mensagem:       strings.TrimSpace(mensagem),
		CriadoEm:       nowMilli(),
	}
	_, err = store.sqlDB.ExecContext(ctx, `
INSERT INTO compartilhamentos (id, numero_processo, remetente, destinatario, equipe_id, mensagem, criado_em)
VALUES (?, ?, ?, '', ?, ?, ?)
`, share.ID, share.NumeroProcesso, share.Remetente, share.EquipeID, share.Mensagem, share.CriadoEm)
	if err != nil {
		return Share{}, fmt.Errorf("share with team: %w", err)
	}
	return share, nil
}

// ListReceivedShares lists shares addressed to the user directly or through
// any of their teams, newest first.
func (store *Store) ListReceivedShares(ctx context.Context, usuario string) ([]Share, error) {
	if err := store.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := store.sqlDB.QueryContext(ctx, `
SELECT c.id, c.numero_processo, c.remetente, c.destinatario, c.equipe_id, c.mensagem, c.criado_em
FROM compartilhamentos c
WHERE c.deletado_em IS NULL
  AND (c.destinatario = ?
   OR c.equipe_id IN (
	SELECT equipe_id FROM equipe_membros
	WHERE usuario = ? AND deletado_em IS NULL))
ORDER BY c.criado_em DESC, c.id DESC
`, strings.TrimSpace(usuario), strings.TrimSpace(usuario))
	if err != nil {
		return nil, fmt.Errorf("list received shares: %w", err)
	}
	return scanShares(rows)
}

// ListSentShares lists the shares a user created, newest first.
func (store *Store) ListSentShares(ctx context.Context, usuario string) ([]Share, error) {
	if err := store.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := store.sqlDB.QueryContext(ctx, `
SELECT id, numero_processo, remetente, destinatario, equipe_id, mensagem, criado_em
FROM compartilhamentos
WHERE remetente = ? AND deletado_em IS NULL
ORDER BY criado_em DESC, id DESC
`, strings.TrimSpace(usuario))
	if err != nil {
		return nil, fmt.Errorf("list sent shares: %w", err)
	}
	return scanShares(rows)
}

// RevokeShare soft-deletes a share. Only the sender may revoke it.
func (store *Store) RevokeShare(ctx context.Context, usuario, shareID string) error {
	if err := store.ready(ctx); err != nil {
		return err
	}

	var remetente string
	err := store.sqlDB.QueryRowContext(ctx, `
SELECT remetente FROM compartilhamentos WHERE id = ? AND deletado_em IS NULL
`, strings.TrimSpace(shareID)).Scan(&remetente)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("load share: %w", err)
	}
	if remetente != strings.TrimSpace(usuario) {
		return ErrForbidden
	}

	_, err = store.sqlDB.ExecContext(ctx, `
UPDATE compartilhamentos SET deletado_em = ? WHERE id = ? AND deletado_em IS NULL
`, nowMilli(), strings.TrimSpace(shareID))
	if err != nil {
		return fmt.Errorf("revoke share: %w", err)
	}
	return nil
}

func scanShares(rows *sql.Rows) ([]Share, error) {
	defer rows.Close()
	shares := []Share{}
	for rows.Next() {
		var share Share
		if err := rows.Scan(&share.ID, &share.NumeroProcesso, &share.Remetente, &share.Destinatario, &share.EquipeID, &share.Mensagem, &share.CriadoEm); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		shares = append(shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shares: %w", err)
	}
	return shares, nil
}
