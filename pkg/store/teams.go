package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Membership roles. Admins manage the roster and may delete the team;
// membros only read and share.
const (
	PapelAdmin  = "admin"
	PapelMembro = "membro"
)

// TeamMember is one user's membership in a team.
type TeamMember struct {
	Usuario string `json:"usuario"`
	Papel   string `json:"papel"`
}

// Team is a named group of users for sharing processes.
type Team struct {
	ID        string       `json:"id"`
	Nome      string       `json:"nome"`
	Descricao string       `json:"descricao,omitempty"`
	Criador   string       `json:"criador"`
	CriadoEm  int64        `json:"criado_em"`
	Membros   []TeamMember `json:"membros"`
}

// CreateTeam creates a team with the creator as its first admin.
func (store *Store) CreateTeam(ctx context.Context, criador, nome, descricao string) (Team, error) {
	if err := store.ready(ctx); err != nil {
		return Team{}, err
	}
	criador = strings.TrimSpace(criador)
	nome = strings.TrimSpace(nome)
	if criador == "" {
		return Team{}, fmt.Errorf("criador is required")
	}
	if nome == "" {
		return Team{}, fmt.Errorf("nome is required")
	}

	team := Team{
		ID:        uuid.NewString(),
		Nome:      nome,
		Descricao: strings.TrimSpace(descricao),
		Criador:   criador,
		CriadoEm:  nowMilli(),
		Membros:   []TeamMember{{Usuario: criador, Papel: PapelAdmin}},
	}

	tx, err := store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return Team{}, fmt.Errorf("begin create team: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO equipes (id, nome, descricao, criador, criado_em)
VALUES (?, ?, ?, ?, ?)
`, team.ID, team.Nome, team.Descricao, team.Criador, team.CriadoEm); err != nil {
		return Team{}, fmt.Errorf("create team: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO equipe_membros (equipe_id, usuario, papel) VALUES (?, ?, ?)
`, team.ID, team.Criador, PapelAdmin); err != nil {
		return Team{}, fmt.Errorf("add creator member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Team{}, fmt.Errorf("commit create team: %w", err)
	}
	return team, nil
}

// GetTeam loads a team with its members. Only members may read it.
func (store *Store) GetTeam(ctx context.Context, usuario, teamID string) (Team, error) {
	if err := store.ready(ctx); err != nil {
		return Team{}, err
	}
	team, err := store.teamByID(ctx, teamID)
	if err != nil {
		return Team{}, err
	}
	if _, ok := memberRole(team, strings.TrimSpace(usuario)); !ok {
		return Team{}, ErrForbidden
	}
	return team, nil
}

// ListTeams lists the teams a user belongs to.
func (store *Store) ListTeams(ctx context.Context, usuario string) ([]Team, error) {
	if err := store.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := store.sqlDB.QueryContext(ctx, `
SELECT e.id
FROM equipes e
JOIN equipe_membros m ON m.equipe_id = e.id
WHERE m.usuario = ? AND m.deletado_em IS NULL AND e.deletado_em IS NULL
ORDER BY e.nome
`, strings.TrimSpace(usuario))
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan team id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}

	teams := []Team{}
	for _, id := range ids {
		team, err := store.teamByID(ctx, id)
		if err != nil {
			return nil, err
		}
		teams = append(teams, team)
	}
	return teams, nil
}

// AddMember adds a user to a team with the given role (membro when empty).
// Only admins manage the roster. Re-adding a removed member revives the
// membership with the new role.
func (store *Store) AddMember(ctx context.Context, actor, teamID, usuario, papel string) error {
	if err := store.ready(ctx); err != nil {
		return err
	}
	team, err := store.teamByID(ctx, teamID)
	if err != nil {
		return err
	}
	if !isAdmin(team, strings.TrimSpace(actor)) {
		return ErrForbidden
	}
	usuario = strings.TrimSpace(usuario)
	if usuario == "" {
		return fmt.Errorf("usuario is required")
	}
	papel = strings.TrimSpace(papel)
	if papel == "" {
		papel = PapelMembro
	}
	if papel != PapelAdmin && papel != PapelMembro {
		return fmt.Errorf("papel must be %q or %q", PapelAdmin, PapelMembro)
	}

	_, err = store.sqlDB.ExecContext(ctx, `
INSERT INTO equipe_membros (equipe_id, usuario, papel) VALUES (?, ?, ?)
ON CONFLICT (equipe_id, usuario) DO UPDATE SET papel = excluded.papel, deletado_em = NULL
`, team.ID, usuario, papel)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// RemoveMember removes a user from a team. Admins only; the creator cannot
// be removed.
func (store *Store) RemoveMember(ctx context.Context, actor, teamID, usuario string) error {
	if err := store.ready(ctx); err != nil {
		return err
	}
	team, err := store.teamByID(ctx, teamID)
	if err != nil {
		return err
	}
	if !isAdmin(team, strings.TrimSpace(actor)) {
		return ErrForbidden
	}
	usuario = strings.TrimSpace(usuario)
	if usuario == team.Criador {
		return fmt.Errorf("team creator cannot be removed")
	}

	result, err := store.sqlDB.ExecContext(ctx, `
UPDATE equipe_membros SET deletado_em = ?
WHERE equipe_id = ? AND usuario = ? AND deletado_em IS NULL
`, nowMilli(), team.ID, usuario)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTeam soft-deletes a team, its membership and its team shares.
// Admins only.
func (store *Store) DeleteTeam(ctx context.Context, actor, teamID string) error {
	if err := store.ready(ctx); err != nil {
		return err
	}
	team, err := store.teamByID(ctx, teamID)
	if err != nil {
		return err
	}
	if !isAdmin(team, strings.TrimSpace(actor)) {
		return ErrForbidden
	}

	tx, err := store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete team: %w", err)
	}
	defer tx.Rollback()

	now := nowMilli()
	if _, err := tx.ExecContext(ctx, `
UPDATE compartilhamentos SET deletado_em = ? WHERE equipe_id = ? AND deletado_em IS NULL
`, now, team.ID); err != nil {
		return fmt.Errorf("delete team shares: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE equipe_membros SET deletado_em = ? WHERE equipe_id = ? AND deletado_em IS NULL
`, now, team.ID); err != nil {
		return fmt.Errorf("delete team members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE equipes SET deletado_em = ? WHERE id = ? AND deletado_em IS NULL
`, now, team.ID); err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	return tx.Commit()
}

func (store *Store) teamByID(ctx context.Context, teamID string) (Team, error) {
	var team Team
	err := store.sqlDB.QueryRowContext(ctx, `
SELECT id, nome, descricao, criador, criado_em
FROM equipes WHERE id = ? AND deletado_em IS NULL
`, strings.TrimSpace(teamID)).Scan(&team.ID, &team.Nome, &team.Descricao, &team.Criador, &team.CriadoEm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Team{}, ErrNotFound
		}
		return Team{}, fmt.Errorf("load team: %w", err)
	}

	rows, err := store.sqlDB.QueryContext(ctx, `
SELECT usuario, papel FROM equipe_membros
WHERE equipe_id = ? AND deletado_em IS NULL
ORDER BY usuario
`, team.ID)
	if err != nil {
		return Team{}, fmt.Errorf("load team members: %w", err)
	}
	defer rows.Close()

	team.Membros = []TeamMember{}
	for rows.Next() {
		var member TeamMember
		if err := rows.Scan(&member.Usuario, &member.Papel); err != nil {
			return Team{}, fmt.Errorf("scan member: %w", err)
		}
		team.Membros = append(team.Membros, member)
	}
	if err := rows.Err(); err != nil {
		return Team{}, fmt.Errorf("iterate members: %w", err)
	}
	return team, nil
}

func memberRole(team Team, usuario string) (string, bool) {
	for _, member := range team.Membros {
		if member.Usuario == usuario {
			return member.Papel, true
		}
	}
	return "", false
}

func isAdmin(team Team, usuario string) bool {
	papel, ok := memberRole(team, usuario)
	return ok && papel == PapelAdmin
}
