package workspace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"codepilot/internal/models"
)

const aiSessionColumns = `id, user_id, project_id, messages, tokens_used, created_at, updated_at`

func scanAiSession(row rowScanner) (*models.AiSession, error) {
	var (
		sess      models.AiSession
		projectID sql.NullInt64
		messages  string
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &projectID, &messages, &sess.TokensUsed,
		&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	if projectID.Valid {
		id := projectID.Int64
		sess.ProjectID = &id
	}
	if err := json.Unmarshal([]byte(messages), &sess.Messages); err != nil {
		return nil, fmt.Errorf("decode transcript %d: %w", sess.ID, err)
	}
	if sess.Messages == nil {
		sess.Messages = []models.TranscriptEntry{}
	}
	return &sess, nil
}

func nullableID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

// Exchange is one metered chat call to be recorded.
type Exchange struct {
	UserID    string
	ProjectID *int64
	Cost      int
	Messages  []models.TranscriptEntry
}

// Debit reports the outcome of RecordExchange.
type Debit struct {
	SessionID   int64
	TokensUsed  int
	TokensLimit int
}

// RecordExchange debits ex.Cost from the user's budget and stores the
// transcript in one transaction. The debit only applies while the user is
// still under the limit; otherwise nothing is written and ErrBudgetExhausted
// is returned together with the balance that blocked it.
func (s *Service) RecordExchange(ctx context.Context, ex Exchange) (*Debit, error) {
	payload, err := json.Marshal(ex.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET tokens_used = tokens_used + ?, updated_at = ? WHERE id = ? AND tokens_used < tokens_limit`,
		ex.Cost, now, ex.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("debit tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("debit rows affected: %w", err)
	}

	var debit Debit
	err = tx.QueryRowContext(ctx, `SELECT tokens_used, tokens_limit FROM users WHERE id = ?`, ex.UserID).
		Scan(&debit.TokensUsed, &debit.TokensLimit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read balance: %w", err)
	}
	if affected == 0 {
		return &debit, ErrBudgetExhausted
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO ai_sessions (user_id, project_id, messages, tokens_used, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ex.UserID, nullableID(ex.ProjectID), string(payload), ex.Cost, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert ai session: %w", err)
	}
	if debit.SessionID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("ai session id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit exchange: %w", err)
	}
	s.InvalidateStats(ctx, ex.UserID)
	return &debit, nil
}

// CreateAiSession stores a transcript without touching the user's budget.
func (s *Service) CreateAiSession(ctx context.Context, in models.AiSession) (*models.AiSession, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("create ai session: %w: user is required", ErrInvalidInput)
	}
	if in.Messages == nil {
		in.Messages = []models.TranscriptEntry{}
	}
	payload, err := json.Marshal(in.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_sessions (user_id, project_id, messages, tokens_used, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		in.UserID, nullableID(in.ProjectID), string(payload), in.TokensUsed, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create ai session: %w", err)
	}
	if in.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("ai session id: %w", err)
	}
	in.CreatedAt = now
	in.UpdatedAt = now
	s.InvalidateStats(ctx, in.UserID)
	return &in, nil
}

// ListAiSessions returns the user's transcripts, newest first.
func (s *Service) ListAiSessions(ctx context.Context, userID string) ([]models.AiSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+aiSessionColumns+` FROM ai_sessions WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ai sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]models.AiSession, 0)
	for rows.Next() {
		sess, err := scanAiSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ai session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// GetAiSession loads one transcript owned by userID.
func (s *Service) GetAiSession(ctx context.Context, userID string, id int64) (*models.AiSession, error) {
	sess, err := scanAiSession(s.db.QueryRowContext(ctx,
		`SELECT `+aiSessionColumns+` FROM ai_sessions WHERE id = ? AND user_id = ?`, id, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get ai session: %w", err)
	}
	return sess, nil
}

// UpdateAiSession replaces the transcript and token count of a stored session.
func (s *Service) UpdateAiSession(ctx context.Context, userID string, id int64, messages []models.TranscriptEntry, tokensUsed int) (*models.AiSession, error) {
	if messages == nil {
		messages = []models.TranscriptEntry{}
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("encode transcript: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ai_sessions SET messages = ?, tokens_used = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		string(payload), tokensUsed, s.now(), id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update ai session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("ai session rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetAiSession(ctx, userID, id)
}
