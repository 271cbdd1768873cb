package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"codepilot/internal/models"
)

const userColumns = `id, COALESCE(email, ''), COALESCE(first_name, ''), COALESCE(last_name, ''),
	COALESCE(profile_image_url, ''), plan, tokens_used, tokens_limit, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.ProfileImageURL,
		&u.Plan, &u.TokensUsed, &u.TokensLimit, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUser loads a user by identity-provider subject.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpsertUser creates the user on first sight and refreshes profile fields
// afterwards. Plan and token counters are never touched for existing users.
func (s *Service) UpsertUser(ctx context.Context, in models.User) (*models.User, error) {
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return nil, fmt.Errorf("upsert user: %w: id is required", ErrInvalidInput)
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, in.ID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("verify user: %w", err)
	}
	if exists {
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET
				email = COALESCE(NULLIF(?, ''), email),
				first_name = COALESCE(NULLIF(?, ''), first_name),
				last_name = COALESCE(NULLIF(?, ''), last_name),
				profile_image_url = COALESCE(NULLIF(?, ''), profile_image_url),
				updated_at = ?
			 WHERE id = ?`,
			in.Email, in.FirstName, in.LastName, in.ProfileImageURL, now, in.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	} else {
		plan := in.Plan
		if !plan.Valid() {
			plan = models.PlanFree
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO users (id, email, first_name, last_name, profile_image_url, plan, tokens_used, tokens_limit, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			in.ID, in.Email, in.FirstName, in.LastName, in.ProfileImageURL, plan, plan.TokenLimit(), now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
	}

	u, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, in.ID))
	if err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert user: %w", err)
	}
	return u, nil
}

// SetUserPlan moves a user to plan and resets the limit to the plan allowance.
func (s *Service) SetUserPlan(ctx context.Context, id string, plan models.Plan) error {
	if !plan.Valid() {
		return fmt.Errorf("set user plan: %w: unknown plan %q", ErrInvalidInput, plan)
	}
	if err := s.setUserPlan(ctx, s.db, id, plan, plan.TokenLimit()); err != nil {
		return err
	}
	s.InvalidateStats(ctx, id)
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Service) setUserPlan(ctx context.Context, db execer, id string, plan models.Plan, limit int) error {
	res, err := db.ExecContext(ctx,
		`UPDATE users SET plan = ?, tokens_limit = ?, updated_at = ? WHERE id = ?`,
		plan, limit, s.now(), id,
	)
	if err != nil {
		return fmt.Errorf("update user plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("user rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
