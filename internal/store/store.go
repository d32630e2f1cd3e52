package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/htmlshot/htmlshot/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, email, passwordHash string, isAdmin bool) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
	SetUserAdmin(ctx context.Context, email string, isAdmin bool) error
	DeleteUser(ctx context.Context, id int64) error

	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	GetActiveAPIKeyByHash(ctx context.Context, keyHash string) (*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	ListAPIKeys(ctx context.Context, userID int64) ([]*models.APIKey, error)
	DeactivateAPIKey(ctx context.Context, id uuid.UUID, userID int64) error

	CreateConversion(ctx context.Context, c *models.Conversion) error
	ListConversions(ctx context.Context, userID int64, limit, offset int) ([]*models.Conversion, int, error)
	GetConversion(ctx context.Context, id uuid.UUID, userID int64) (*models.Conversion, error)
	DeleteConversion(ctx context.Context, id uuid.UUID, userID int64) error

	CreateInvitation(ctx context.Context, inv *models.Invitation) error
	GetInvitationByCode(ctx context.Context, code string) (*models.Invitation, error)
	MarkInvitationUsed(ctx context.Context, id uuid.UUID, usedBy int64) error
	ListInvitations(ctx context.Context) ([]*models.Invitation, error)
	DeleteInvitation(ctx context.Context, id uuid.UUID) error

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}
