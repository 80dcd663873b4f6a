package relationship

import (
	"context"
	"time"

	"allowance/internal/auth"
)

type Repository interface {
	ParentLinkedToStudent(ctx context.Context, parentID, studentID int) (bool, error)
	ListStudents(ctx context.Context, parentID int) ([]Link, error)
	ParentOf(ctx context.Context, studentID int) (*Link, error)
	Link(ctx context.Context, parentID, studentID int) (*Link, error)
	Revoke(ctx context.Context, parentID, studentID int) error
	UserRole(ctx context.Context, userID int) (auth.Role, error)

	CreateInvite(ctx context.Context, inv *Invite) (*Invite, error)
	ListInvites(ctx context.Context, parentID int) ([]Invite, error)

	// AcceptInvite redeems code for studentID and returns the new link.
	// An invite found past its expiry is marked EXPIRED before
	// ErrInviteExpired is returned.
	AcceptInvite(ctx context.Context, studentID int, code string, now time.Time) (*Link, error)
}
