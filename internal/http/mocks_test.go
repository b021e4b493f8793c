package http

import (
	"context"
	"errors"

	"github.com/fjod/go_cart/internal/domain"
)

// MockCheckoutService records requests and returns canned results.
type MockCheckoutService struct {
	AuthorizeReq  domain.AuthorizeRequest
	AuthorizeResp *domain.AuthorizeResponse
	FinalizeReq   domain.FinalizeRequest
	WebhookHandle string
	Order         *domain.Order
	Err           error
}

func (m *MockCheckoutService) Authorize(_ context.Context, req domain.AuthorizeRequest) (*domain.AuthorizeResponse, error) {
	m.AuthorizeReq = req
	return m.AuthorizeResp, m.Err
}

func (m *MockCheckoutService) Finalize(_ context.Context, req domain.FinalizeRequest) (*domain.Order, error) {
	m.FinalizeReq = req
	return m.Order, m.Err
}

func (m *MockCheckoutService) FinalizeByAuthorization(_ context.Context, authorizationID string) (*domain.Order, error) {
	m.WebhookHandle = authorizationID
	return m.Order, m.Err
}

type stubOrders struct {
	order *domain.Order
}

func (s *stubOrders) GetForOwner(_ context.Context, ownerID, id string) (*domain.Order, error) {
	if s.order == nil || s.order.ID != id || s.order.OwnerID != ownerID {
		return nil, errors.New("order not found")
	}
	return s.order, nil
}

func (s *stubOrders) ListForOwner(context.Context, string) ([]*domain.Order, error) {
	return []*domain.Order{s.order}, nil
}

func (s *stubOrders) UpdateStatus(context.Context, string, domain.OrderStatus) (*domain.Order, error) {
	return s.order, nil
}
