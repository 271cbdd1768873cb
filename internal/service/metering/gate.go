package metering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codepilot/internal/logger"
	"codepilot/internal/models"
	"codepilot/internal/service/assistant"
	"codepilot/internal/service/workspace"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrQuotaExceeded = errors.New("token limit exceeded")
	ErrInternal      = errors.New("failed to process ai request")
)

// QuotaExceededError reports the balance that blocked a chat call.
type QuotaExceededError struct {
	TokensUsed  int
	TokensLimit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("token limit exceeded: %d/%d", e.TokensUsed, e.TokensLimit)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Store is the persistence the gate needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	RecordExchange(ctx context.Context, ex workspace.Exchange) (*workspace.Debit, error)
}

// Responder produces the canned answer for a request.
type Responder interface {
	Generate(req assistant.Request) assistant.Response
}

// ChatRequest is the body of a chat call.
type ChatRequest struct {
	Message   string `json:"message"`
	ProjectID *int64 `json:"projectId,omitempty"`
	Language  string `json:"language,omitempty"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Result is a successful, debited chat call.
type Result struct {
	assistant.Response
	SessionID       int64 `json:"sessionId"`
	RemainingTokens int   `json:"remainingTokens"`
}

// Gate checks a user's balance, answers the request and debits the cost.
type Gate struct {
	store     Store
	responder Responder
	now       func() time.Time
}

func NewGate(store Store, responder Responder) *Gate {
	return &Gate{
		store:     store,
		responder: responder,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle runs one metered chat call for userID.
//
// A user at or over the limit is rejected before dispatch. Otherwise the
// response is generated and its cost debited together with the transcript;
// if another call exhausted the budget in the meantime the debit is refused
// and the call is rejected without writing anything. The call that crosses
// the limit is charged in full, so the remaining balance can go negative.
func (g *Gate) Handle(ctx context.Context, userID string, req ChatRequest) (*Result, error) {
	user, err := g.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, workspace.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrUserNotFound, err)
		}
		return nil, fmt.Errorf("%w: load user: %w", ErrInternal, err)
	}
	if user.TokensUsed >= user.TokensLimit {
		logger.WarnWithFields("chat rejected: quota exceeded", logger.Fields{
			"user_id": userID, "tokens_used": user.TokensUsed, "tokens_limit": user.TokensLimit,
		})
		return nil, &QuotaExceededError{TokensUsed: user.TokensUsed, TokensLimit: user.TokensLimit}
	}

	resp := g.responder.Generate(assistant.Request{
		Language: assistant.ParseLanguage(req.Language),
		Code:     req.Code,
		Error:    req.Error,
		Question: req.Message,
	})

	at := g.now()
	debit, err := g.store.RecordExchange(ctx, workspace.Exchange{
		UserID:    userID,
		ProjectID: req.ProjectID,
		Cost:      resp.TokensUsed,
		Messages: []models.TranscriptEntry{
			{Role: models.RoleUser, Content: req.Message, Timestamp: at},
			{Role: models.RoleAssistant, Content: resp.Text, Timestamp: at},
		},
	})
	switch {
	case errors.Is(err, workspace.ErrBudgetExhausted) && debit != nil:
		logger.WarnWithFields("chat rejected: budget consumed concurrently", logger.Fields{
			"user_id": userID, "tokens_used": debit.TokensUsed, "tokens_limit": debit.TokensLimit,
		})
		return nil, &QuotaExceededError{TokensUsed: debit.TokensUsed, TokensLimit: debit.TokensLimit}
	case errors.Is(err, workspace.ErrNotFound):
		return nil, fmt.Errorf("%w: %w", ErrUserNotFound, err)
	case err != nil:
		return nil, fmt.Errorf("%w: record exchange: %w", ErrInternal, err)
	}

	logger.InfoWithFields("chat handled", logger.Fields{
		"user_id":     userID,
		"path":        resp.Path.String(),
		"tokens_used": resp.TokensUsed,
		"session_id":  debit.SessionID,
	})
	return &Result{
		Response:        resp,
		SessionID:       debit.SessionID,
		RemainingTokens: debit.TokensLimit - debit.TokensUsed,
	}, nil
}
