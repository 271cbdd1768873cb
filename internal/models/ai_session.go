package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one message of a chat exchange.
type TranscriptEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AiSession is the stored transcript of one metered chat call.
type AiSession struct {
	ID         int64             `json:"id"`
	UserID     string            `json:"userId"`
	ProjectID  *int64            `json:"projectId"`
	Messages   []TranscriptEntry `json:"messages"`
	TokensUsed int               `json:"tokensUsed"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}
