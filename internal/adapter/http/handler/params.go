package handler

import (
	"context"

	"marketplace-wallet/internal/core/ports"
	"marketplace-wallet/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// uuidParam parses a UUID path parameter.
func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.Validation("invalid " + name)
	}
	return id, nil
}

// authorizeSeller checks that actor operates sellerRef's settlement account.
// Admins act for any seller.
func authorizeSeller(ctx context.Context, sellers ports.SellerDirectory, actor *ports.TokenClaims, sellerRef string) error {
	if actor.IsAdmin() {
		return nil
	}
	account, err := sellers.ResolveSettlementAccount(ctx, sellerRef)
	if err != nil {
		if apperror.IsCode(err, apperror.CodeSellerProfileNotFound) {
			return apperror.ErrForbidden()
		}
		return err
	}
	if account != actor.AccountID {
		return apperror.ErrForbidden()
	}
	return nil
}
