package members

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Member is a registered chat-platform user.
// ExternalID is the platform user id; MemberNumber is issued by this service.
type Member struct {
	ExternalID   string    `json:"external_id"`
	Name         string    `json:"name"`
	Region       string    `json:"region"`
	Email        string    `json:"email,omitempty"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	MemberNumber string    `json:"member_number"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ProfileUpdate lists the fields touched by an update. Nil pointers are left as they are.
type ProfileUpdate struct {
	Name         *string
	Region       *string
	Email        *string
	PhoneNumber  *string
	MemberNumber *string
}

var (
	ErrNotFound            = errors.New("member not found")
	ErrConstraintViolation = errors.New("constraint violation")

	ErrDuplicateExternalID   = fmt.Errorf("duplicate external id: %w", ErrConstraintViolation)
	ErrDuplicateMemberNumber = fmt.Errorf("duplicate member number: %w", ErrConstraintViolation)
)

// Reader holds the lookups shared by the store and its transactions.
type Reader interface {
	// FindByExternalID returns ErrNotFound when no row matches.
	FindByExternalID(ctx context.Context, externalID string) (*Member, error)
	// FindByMemberNumber returns ErrNotFound when no row matches.
	FindByMemberNumber(ctx context.Context, memberNumber string) (*Member, error)
}

// Writer holds the single-row mutations.
type Writer interface {
	// Insert fails with ErrDuplicateExternalID or ErrDuplicateMemberNumber.
	Insert(ctx context.Context, m *Member) error
	// UpdateProfile fails with ErrNotFound when externalID is unknown and with
	// ErrDuplicateMemberNumber when the new number is held by someone else.
	UpdateProfile(ctx context.Context, externalID string, fields ProfileUpdate) error
}

// Tx is the view of the store inside RunInTx.
type Tx interface {
	Reader
	Writer
	// MaxMemberSequence returns the highest numeric suffix issued so far, 0 if none.
	MaxMemberSequence(ctx context.Context) (int, error)
	// LowestFreeSequence returns the smallest unused suffix in 1..limit, 0 if
	// every suffix in that range is taken.
	LowestFreeSequence(ctx context.Context, limit int) (int, error)
}

// Repository is the member store.
type Repository interface {
	Reader
	Writer

	// ListAll returns every member in insertion order.
	ListAll(ctx context.Context) ([]*Member, error)
	// ListPage returns one page in insertion order along with the total count.
	ListPage(ctx context.Context, offset, limit int) ([]*Member, int, error)

	// RunInTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Health(ctx context.Context) error
	Disconnect()
}
