package collaborator

import (
	"context"
	"net/http"
	"time"

	"marketplace-wallet/internal/core/domain"
)

// Inventory implements ports.Inventory against the catalog service.
type Inventory struct {
	client
}

// NewInventory creates an Inventory client.
func NewInventory(baseURL string, httpClient HTTPClient, timeout time.Duration) *Inventory {
	return &Inventory{client: newClient(baseURL, httpClient, timeout)}
}

type stockRequest struct {
	Changes []domain.StockChange `json:"changes"`
}

func (i *Inventory) Decrement(ctx context.Context, changes []domain.StockChange) error {
	if len(changes) == 0 {
		return nil
	}
	_, err := i.do(ctx, http.MethodPost, "/stock/decrement", stockRequest{Changes: changes}, nil)
	return err
}

func (i *Inventory) Restore(ctx context.Context, changes []domain.StockChange) error {
	if len(changes) == 0 {
		return nil
	}
	_, err := i.do(ctx, http.MethodPost, "/stock/restore", stockRequest{Changes: changes}, nil)
	return err
}
