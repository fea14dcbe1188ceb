package collaborator

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"marketplace-wallet/internal/core/domain"
)

// OrderService implements ports.OrderService against the checkout service.
type OrderService struct {
	client
}

// NewOrderService creates an OrderService client.
func NewOrderService(baseURL string, httpClient HTTPClient, timeout time.Duration) *OrderService {
	return &OrderService{client: newClient(baseURL, httpClient, timeout)}
}

func orderPath(orderRef string) string {
	return "/orders/" + url.PathEscape(orderRef)
}

// GetOrder returns nil, nil on 404.
func (s *OrderService) GetOrder(ctx context.Context, orderRef string) (*domain.Order, error) {
	var order domain.Order
	status, err := s.do(ctx, http.MethodGet, orderPath(orderRef), nil, &order)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *OrderService) MarkPaid(ctx context.Context, orderRef string) error {
	_, err := s.do(ctx, http.MethodPost, orderPath(orderRef)+"/paid", nil, nil)
	return err
}

func (s *OrderService) MarkCancelled(ctx context.Context, orderRef string) error {
	_, err := s.do(ctx, http.MethodPost, orderPath(orderRef)+"/cancel", nil, nil)
	return err
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *OrderService) SetStatus(ctx context.Context, orderRef string, status string) error {
	_, err := s.do(ctx, http.MethodPut, orderPath(orderRef)+"/status", statusRequest{Status: status}, nil)
	return err
}

func (s *OrderService) MarkItemReceived(ctx context.Context, orderRef string, productID string) error {
	_, err := s.do(ctx, http.MethodPost, orderPath(orderRef)+"/items/"+url.PathEscape(productID)+"/received", nil, nil)
	return err
}
