package orders

import (
	"context"

	"go.uber.org/zap"

	"github.com/fjod/go_cart/internal/domain"
)

// Service exposes owner-scoped reads and admin status changes. Orders are
// only ever created by the checkout orchestrator.
type Service struct {
	repo Repository
	log  *zap.Logger
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log.Named("orders")}
}

// GetForOwner hides orders of other owners behind ErrOrderNotFound.
func (s *Service) GetForOwner(ctx context.Context, ownerID, id string) (*domain.Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.OwnerID != ownerID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) ListForOwner(ctx context.Context, ownerID string) ([]*domain.Order, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *Service) UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (*domain.Order, error) {
	if !to.Valid() {
		return nil, ErrInvalidTransition
	}
	o, err := s.repo.UpdateStatus(ctx, id, to)
	if err != nil {
		return nil, err
	}
	s.log.Info("order status updated", zap.String("order_id", id), zap.String("status", string(to)))
	return o, nil
}
