package collaborator

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"marketplace-wallet/pkg/apperror"
)

// SellerDirectory implements ports.SellerDirectory against the store service.
type SellerDirectory struct {
	client
}

// NewSellerDirectory creates a SellerDirectory client. A nil httpClient
// gets a default one with the given timeout.
func NewSellerDirectory(baseURL string, httpClient HTTPClient, timeout time.Duration) *SellerDirectory {
	return &SellerDirectory{client: newClient(baseURL, httpClient, timeout)}
}

type settlementAccountResponse struct {
	AccountID string `json:"account_id"`
}

// ResolveSettlementAccount returns the wallet account sellerRef is paid into.
func (d *SellerDirectory) ResolveSettlementAccount(ctx context.Context, sellerRef string) (string, error) {
	var resp settlementAccountResponse
	status, err := d.do(ctx, http.MethodGet, "/sellers/"+url.PathEscape(sellerRef)+"/settlement-account", nil, &resp)
	if status == http.StatusNotFound {
		return "", apperror.ErrSellerProfileNotFound(sellerRef)
	}
	if err != nil {
		return "", err
	}
	if resp.AccountID == "" {
		return "", apperror.ErrSellerProfileNotFound(sellerRef)
	}
	return resp.AccountID, nil
}
