package api

import (
	"context"

	"board-api/domain"
)

// Board is the mutation surface handlers drive for card operations.
type Board interface {
	List(ctx context.Context) ([]domain.Card, error)
	Create(ctx context.Context, fields domain.CardFields) (domain.Card, error)
	Update(ctx context.Context, id string, u domain.CardUpdate) (domain.Card, error)
	Move(ctx context.Context, id string, dest domain.Status, destIndex int) ([]domain.Card, error)
}

// Authenticator is implemented by types able to extract user IDs from
// Authorization headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// CredentialVerifier maps a username/password pair to a user identity.
type CredentialVerifier interface {
	Verify(username, password string) (Identity, error)
}
