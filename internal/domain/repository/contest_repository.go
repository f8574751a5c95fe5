package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"practice_arena/internal/common"
	"practice_arena/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

// ContestRepository is the durable store for virtual contests, their ordered
// item lists and their participant rosters. Multi-record mutations are atomic:
// readers observe either the pre- or post-write state, never a mix.
type ContestRepository interface {
	CreateContest(ctx context.Context, contest *model.VirtualContest) error
	UpdateContest(ctx context.Context, contest *model.VirtualContest) error
	ReplaceItems(ctx context.Context, contestID string, items []model.VirtualContestItem) error
	AddParticipant(ctx context.Context, contestID, userID string) error
	FindContestByID(ctx context.Context, id string) (*model.VirtualContest, error)
	GetItemsByContestID(ctx context.Context, contestID string) ([]model.VirtualContestItem, error)
	ListOwnedContests(ctx context.Context, userID string) ([]model.VirtualContest, error)
	ListParticipatedContests(ctx context.Context, userID string) ([]model.VirtualContest, error)
	ListRecentContests(ctx context.Context, from, to int64, orderDesc bool) ([]model.VirtualContest, error)
}

type pgContestRepository struct {
	db *sql.DB
}

func NewPgContestRepository(db *sql.DB) ContestRepository {
	return &pgContestRepository{db: db}
}

const contestColumns = `id, title, memo, owner_user_id, start_epoch_second, duration_second, mode, created_at, updated_at`

func (r *pgContestRepository) CreateContest(ctx context.Context, c *model.VirtualContest) error {
	query := `INSERT INTO virtual_contests (id, title, memo, owner_user_id, start_epoch_second, duration_second, mode)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.Title, c.Memo, c.OwnerUserID, c.StartEpochSecond, c.DurationSecond, nullableMode(c.Mode))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Duplicate contest id
			return fmt.Errorf("contest id %s already exists: %w", c.ID, common.ErrConflict)
		}
		return fmt.Errorf("pgContestRepository.CreateContest: %w", err)
	}
	return nil
}

func (r *pgContestRepository) UpdateContest(ctx context.Context, c *model.VirtualContest) error {
	query := `UPDATE virtual_contests SET
                title = $1, memo = $2, start_epoch_second = $3, duration_second = $4,
                mode = $5, updated_at = CURRENT_TIMESTAMP
              WHERE id = $6`
	res, err := r.db.ExecContext(ctx, query,
		c.Title, c.Memo, c.StartEpochSecond, c.DurationSecond, nullableMode(c.Mode), c.ID)
	if err != nil {
		return fmt.Errorf("pgContestRepository.UpdateContest: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgContestRepository.UpdateContest rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("contest %s: %w", c.ID, common.ErrNotFound)
	}
	return nil
}

// ReplaceItems swaps the whole item list of a contest inside one transaction,
// preserving the order the caller supplied.
func (r *pgContestRepository) ReplaceItems(ctx context.Context, contestID string, items []model.VirtualContestItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgContestRepository.ReplaceItems begin: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM virtual_contests WHERE id = $1)`, contestID).Scan(&exists); err != nil {
		return fmt.Errorf("pgContestRepository.ReplaceItems exists check: %w", err)
	}
	if !exists {
		return fmt.Errorf("contest %s: %w", contestID, common.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM virtual_contest_items WHERE contest_id = $1`, contestID); err != nil {
		return fmt.Errorf("pgContestRepository.ReplaceItems delete: %w", err)
	}

	if len(items) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO virtual_contest_items (contest_id, problem_id, item_order) VALUES ($1, $2, $3)`)
		if err != nil {
			return fmt.Errorf("pgContestRepository.ReplaceItems prepare: %w", err)
		}
		defer stmt.Close()

		for i, item := range items {
			if _, err := stmt.ExecContext(ctx, contestID, item.ProblemID, i); err != nil {
				return fmt.Errorf("pgContestRepository.ReplaceItems exec for problem %s: %w", item.ProblemID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgContestRepository.ReplaceItems commit: %w", err)
	}
	return nil
}

// AddParticipant is an idempotent insert-or-ignore keyed on
// (contest_id, user_id). Joining twice leaves the first row untouched.
func (r *pgContestRepository) AddParticipant(ctx context.Context, contestID, userID string) error {
	query := `INSERT INTO virtual_contest_participants (contest_id, user_id)
	          VALUES ($1, $2)
	          ON CONFLICT (contest_id, user_id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, contestID, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // FK violation: no such contest
			return fmt.Errorf("contest %s: %w", contestID, common.ErrNotFound)
		}
		return fmt.Errorf("pgContestRepository.AddParticipant: %w", err)
	}
	return nil
}

func (r *pgContestRepository) FindContestByID(ctx context.Context, id string) (*model.VirtualContest, error) {
	query := `SELECT ` + contestColumns + ` FROM virtual_contests WHERE id = $1`
	contest := &model.VirtualContest{}
	var mode sql.NullString
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&contest.ID, &contest.Title, &contest.Memo, &contest.OwnerUserID,
		&contest.StartEpochSecond, &contest.DurationSecond, &mode,
		&contest.CreatedAt, &contest.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contest %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("pgContestRepository.FindContestByID: %w", err)
	}
	contest.Mode = modeFromNullable(mode)
	return contest, nil
}

func (r *pgContestRepository) GetItemsByContestID(ctx context.Context, contestID string) ([]model.VirtualContestItem, error) {
	query := `SELECT contest_id, problem_id, item_order
	          FROM virtual_contest_items WHERE contest_id = $1 ORDER BY item_order ASC`
	rows, err := r.db.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.GetItemsByContestID query: %w", err)
	}
	defer rows.Close()

	items := []model.VirtualContestItem{}
	for rows.Next() {
		var item model.VirtualContestItem
		if err := rows.Scan(&item.ContestID, &item.ProblemID, &item.ItemOrder); err != nil {
			return nil, fmt.Errorf("pgContestRepository.GetItemsByContestID scan: %w", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgContestRepository.GetItemsByContestID rows.Err: %w", err)
	}
	return items, nil
}

func (r *pgContestRepository) ListOwnedContests(ctx context.Context, userID string) ([]model.VirtualContest, error) {
	query := `SELECT ` + contestColumns + ` FROM virtual_contests
	          WHERE owner_user_id = $1 ORDER BY start_epoch_second DESC`
	return r.queryContests(ctx, "ListOwnedContests", query, userID)
}

func (r *pgContestRepository) ListParticipatedContests(ctx context.Context, userID string) ([]model.VirtualContest, error) {
	query := `SELECT c.id, c.title, c.memo, c.owner_user_id, c.start_epoch_second, c.duration_second, c.mode, c.created_at, c.updated_at
	          FROM virtual_contests c
	          JOIN virtual_contest_participants p ON c.id = p.contest_id
	          WHERE p.user_id = $1 ORDER BY c.start_epoch_second DESC`
	return r.queryContests(ctx, "ListParticipatedContests", query, userID)
}

// ListRecentContests returns contests whose active window [start, start+duration)
// overlaps the [from, to] horizon.
func (r *pgContestRepository) ListRecentContests(ctx context.Context, from, to int64, orderDesc bool) ([]model.VirtualContest, error) {
	order := "ASC"
	if orderDesc {
		order = "DESC"
	}
	query := `SELECT ` + contestColumns + ` FROM virtual_contests
	          WHERE start_epoch_second <= $2 AND start_epoch_second + duration_second >= $1
	          ORDER BY start_epoch_second ` + order
	return r.queryContests(ctx, "ListRecentContests", query, from, to)
}

func (r *pgContestRepository) queryContests(ctx context.Context, op, query string, args ...interface{}) ([]model.VirtualContest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.%s query: %w", op, err)
	}
	defer rows.Close()

	contests := []model.VirtualContest{}
	for rows.Next() {
		var c model.VirtualContest
		var mode sql.NullString
		if err := rows.Scan(&c.ID, &c.Title, &c.Memo, &c.OwnerUserID,
			&c.StartEpochSecond, &c.DurationSecond, &mode, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgContestRepository.%s scan: %w", op, err)
		}
		c.Mode = modeFromNullable(mode)
		contests = append(contests, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgContestRepository.%s rows.Err: %w", op, err)
	}
	return contests, nil
}

// The default mode is persisted as NULL so the column only carries explicit
// variant tags.
func nullableMode(m model.ContestMode) sql.NullString {
	if m == "" || m == model.ModeStandard {
		return sql.NullString{}
	}
	return sql.NullString{String: string(m), Valid: true}
}

func modeFromNullable(s sql.NullString) model.ContestMode {
	if !s.Valid || s.String == "" {
		return model.ModeStandard
	}
	return model.ContestMode(s.String)
}
