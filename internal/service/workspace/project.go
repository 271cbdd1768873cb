package workspace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"codepilot/internal/models"
)

const projectColumns = `id, name, description, language, user_id, files, is_public, created_at, updated_at`

func scanProject(row rowScanner) (*models.Project, error) {
	var (
		p     models.Project
		files string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Language, &p.UserID, &files,
		&p.IsPublic, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Files = json.RawMessage(files)
	return &p, nil
}

func normalizeFiles(files json.RawMessage) (string, error) {
	if len(files) == 0 || string(files) == "null" {
		return "{}", nil
	}
	if !json.Valid(files) {
		return "", fmt.Errorf("%w: files must be valid JSON", ErrInvalidInput)
	}
	return string(files), nil
}

// ListProjects returns the user's projects, most recently updated first.
func (s *Service) ListProjects(ctx context.Context, userID string) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE user_id = ? ORDER BY updated_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]models.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// GetProject loads a project without any ownership check.
func (s *Service) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ViewProject loads a project the caller owns or that is public.
func (s *Service) ViewProject(ctx context.Context, userID string, id int64) (*models.Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID && !p.IsPublic {
		return nil, ErrAccessDenied
	}
	return p, nil
}

// OwnedProject loads a project only if userID owns it.
func (s *Service) OwnedProject(ctx context.Context, userID string, id int64) (*models.Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrAccessDenied
	}
	return p, nil
}

// CreateProject stores a new project owned by in.UserID.
func (s *Service) CreateProject(ctx context.Context, in models.Project) (*models.Project, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Language = strings.TrimSpace(in.Language)
	if in.Name == "" || in.Language == "" {
		return nil, fmt.Errorf("create project: %w: name and language are required", ErrInvalidInput)
	}
	if in.UserID == "" {
		return nil, fmt.Errorf("create project: %w: owner is required", ErrInvalidInput)
	}
	files, err := normalizeFiles(in.Files)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, description, language, user_id, files, is_public, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Name, in.Description, in.Language, in.UserID, files, in.IsPublic, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("project id: %w", err)
	}
	s.InvalidateStats(ctx, in.UserID)

	in.ID = id
	in.Files = json.RawMessage(files)
	in.CreatedAt = now
	in.UpdatedAt = now
	return &in, nil
}

// UpdateProject applies a partial update to a project owned by userID.
func (s *Service) UpdateProject(ctx context.Context, userID string, id int64, upd models.ProjectUpdate) (*models.Project, error) {
	p, err := s.OwnedProject(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		if name := strings.TrimSpace(*upd.Name); name != "" {
			p.Name = name
		}
	}
	if upd.Description != nil {
		p.Description = *upd.Description
	}
	if upd.Language != nil {
		if lang := strings.TrimSpace(*upd.Language); lang != "" {
			p.Language = lang
		}
	}
	if upd.Files != nil {
		files, err := normalizeFiles(*upd.Files)
		if err != nil {
			return nil, fmt.Errorf("update project: %w", err)
		}
		p.Files = json.RawMessage(files)
	}
	if upd.IsPublic != nil {
		p.IsPublic = *upd.IsPublic
	}
	p.UpdatedAt = s.now()

	_, err = s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, description = ?, language = ?, files = ?, is_public = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		p.Name, p.Description, p.Language, string(p.Files), p.IsPublic, p.UpdatedAt, id, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

// DeleteProject removes a project owned by userID.
func (s *Service) DeleteProject(ctx context.Context, userID string, id int64) error {
	if _, err := s.OwnedProject(ctx, userID, id); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ? AND user_id = ?`, id, userID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	s.InvalidateStats(ctx, userID)
	return nil
}
