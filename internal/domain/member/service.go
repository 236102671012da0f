package member

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rpggio/admission/internal/repository"
)

// Service owns member identity and tier derivation.
type Service struct {
	repo   Repository
	tiers  *TierTable
	logger *slog.Logger
}

// NewService creates a new member service.
func NewService(repo Repository, tiers *TierTable, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tiers: tiers, logger: logger}
}

// RegisterRequest defines registration inputs.
type RegisterRequest struct {
	ExternalID  string
	DisplayName string
	Reason      string
}

// Register creates a member whose tier is derived from the declared reason.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Member, error) {
	externalID := strings.TrimSpace(req.ExternalID)
	name := strings.TrimSpace(req.DisplayName)
	if externalID == "" || name == "" {
		return nil, ErrInvalidInput
	}

	reason := strings.TrimSpace(req.Reason)
	m := &Member{
		ID:          uuid.NewString(),
		ExternalID:  externalID,
		DisplayName: name,
		Reason:      reason,
		Tier:        s.tiers.TierFor(reason),
		Active:      true,
		CreatedAt:   time.Now(),
	}
	if _, known := s.tiers.Reason(reason); !known {
		s.logger.Info("unrecognized reason, using fallback tier", "reason", reason, "tier", m.Tier)
	}

	if err := s.repo.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateMember
		}
		return nil, fmt.Errorf("creating member: %w", err)
	}
	return m, nil
}

// Get fetches a member by ID.
func (s *Service) Get(ctx context.Context, id string) (*Member, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, "getting member")
	}
	return m, nil
}

// GetByExternalID fetches a member by external identity.
func (s *Service) GetByExternalID(ctx context.Context, externalID string) (*Member, error) {
	m, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, mapNotFound(err, "getting member by external id")
	}
	return m, nil
}

// GetMany fetches the members with the given IDs. Missing IDs are absent from
// the result.
func (s *Service) GetMany(ctx context.Context, ids []string) (map[string]Member, error) {
	if len(ids) == 0 {
		return map[string]Member{}, nil
	}
	return s.repo.GetMany(ctx, ids)
}

// List returns every member.
func (s *Service) List(ctx context.Context) ([]Member, error) {
	return s.repo.List(ctx, ListOptions{})
}

// ListActive returns members that have not been deactivated.
func (s *Service) ListActive(ctx context.Context) ([]Member, error) {
	return s.repo.List(ctx, ListOptions{ActiveOnly: true})
}

// SetActive toggles the active flag. Tickets are not touched.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (*Member, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Active == active {
		return m, nil
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, mapNotFound(err, "setting member active")
	}
	m.Active = active
	return m, nil
}

// ChangeReason replaces the declared reason and re-derives the tier.
func (s *Service) ChangeReason(ctx context.Context, id, reason string) (*Member, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	tier := s.tiers.TierFor(reason)
	if err := s.repo.UpdateReason(ctx, id, reason, tier); err != nil {
		return nil, mapNotFound(err, "updating member reason")
	}
	m.Reason = reason
	m.Tier = tier
	return m, nil
}

// Tiers exposes the reason table.
func (s *Service) Tiers() *TierTable {
	return s.tiers
}

func mapNotFound(err error, op string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrMemberNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
