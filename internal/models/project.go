package models

import (
	"encoding/json"
	"time"
)

type Project struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Language    string          `json:"language"`
	UserID      string          `json:"userId"`
	Files       json.RawMessage `json:"files"`
	IsPublic    bool            `json:"isPublic"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProjectUpdate holds the fields of a partial update; nil means unchanged.
type ProjectUpdate struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Language    *string          `json:"language"`
	Files       *json.RawMessage `json:"files"`
	IsPublic    *bool            `json:"isPublic"`
}
