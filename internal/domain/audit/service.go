package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Service handles audit log operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService creates a new audit service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Record appends an entry stamped with the current time.
func (s *Service) Record(ctx context.Context, operatorID string, action Action, detail string) (*Entry, error) {
	if strings.TrimSpace(operatorID) == "" || action == "" {
		return nil, ErrInvalidInput
	}
	entry := &Entry{
		OperatorID: operatorID,
		Action:     action,
		Detail:     detail,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("recording audit entry: %w", err)
	}
	s.logger.Debug("audit entry recorded", "operator", operatorID, "action", action)
	return entry, nil
}

// List returns entries matching opts, newest first.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	return s.repo.List(ctx, opts)
}
