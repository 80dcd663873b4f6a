package relationship

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"allowance/internal/auth"
	"allowance/internal/logger"

	"github.com/google/uuid"
)

type Service interface {
	CanView(ctx context.Context, actor auth.Actor, studentID int) (bool, error)
	ParentLinkedToStudent(ctx context.Context, parentID, studentID int) (bool, error)
	ListStudents(ctx context.Context, parentID int) ([]Link, error)
	MyParent(ctx context.Context, studentID int) (*Link, error)
	Revoke(ctx context.Context, parentID, studentID int) error
	CreateInvite(ctx context.Context, parentID int, studentEmail string) (*Invite, error)
	ListInvites(ctx context.Context, parentID int) ([]Invite, error)
	AcceptInvite(ctx context.Context, studentID int, code string) (*Link, error)
	AdminLink(ctx context.Context, parentID, studentID int) (*Link, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, now: time.Now}
}

// CanView: admins see everyone, students see themselves, parents see the
// students they are actively linked to.
func (s *service) CanView(ctx context.Context, actor auth.Actor, studentID int) (bool, error) {
	switch {
	case actor.Can(auth.CapBypassLinks):
		return true, nil
	case actor.Role == auth.RoleStudent:
		return actor.ID == studentID, nil
	case actor.Can(auth.CapViewLinked):
		return s.repo.ParentLinkedToStudent(ctx, actor.ID, studentID)
	}
	return false, nil
}

func (s *service) ParentLinkedToStudent(ctx context.Context, parentID, studentID int) (bool, error) {
	return s.repo.ParentLinkedToStudent(ctx, parentID, studentID)
}

func (s *service) ListStudents(ctx context.Context, parentID int) ([]Link, error) {
	return s.repo.ListStudents(ctx, parentID)
}

func (s *service) MyParent(ctx context.Context, studentID int) (*Link, error) {
	return s.repo.ParentOf(ctx, studentID)
}

func (s *service) Revoke(ctx context.Context, parentID, studentID int) error {
	if err := s.repo.Revoke(ctx, parentID, studentID); err != nil {
		return err
	}
	logger.Info("link revoked", "parent_id", parentID, "student_id", studentID)
	return nil
}

const inviteAttempts = 5

func (s *service) CreateInvite(ctx context.Context, parentID int, studentEmail string) (*Invite, error) {
	var email *string
	if e := strings.TrimSpace(studentEmail); e != "" {
		email = &e
	}

	for i := 0; i < inviteAttempts; i++ {
		inv, err := s.repo.CreateInvite(ctx, &Invite{
			ParentID:     parentID,
			Code:         newInviteCode(),
			StudentEmail: email,
			ExpiresAt:    s.now().Add(InviteTTL),
		})
		if errors.Is(err, errCodeTaken) {
			continue
		}
		return inv, err
	}
	return nil, fmt.Errorf("create invite: no free code after %d attempts", inviteAttempts)
}

func (s *service) ListInvites(ctx context.Context, parentID int) ([]Invite, error) {
	return s.repo.ListInvites(ctx, parentID)
}

func (s *service) AcceptInvite(ctx context.Context, studentID int, code string) (*Link, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrInviteNotFound
	}

	link, err := s.repo.AcceptInvite(ctx, studentID, code, s.now())
	if err != nil {
		return nil, err
	}
	logger.Info("invite accepted", "parent_id", link.ParentID, "student_id", studentID)
	return link, nil
}

func (s *service) AdminLink(ctx context.Context, parentID, studentID int) (*Link, error) {
	if err := s.requireRole(ctx, parentID, auth.RoleParent); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, studentID, auth.RoleStudent); err != nil {
		return nil, err
	}
	return s.repo.Link(ctx, parentID, studentID)
}

func (s *service) requireRole(ctx context.Context, userID int, want auth.Role) error {
	role, err := s.repo.UserRole(ctx, userID)
	if err != nil {
		return err
	}
	if role != want {
		return fmt.Errorf("%w: user %d is %s, expected %s", ErrRoleMismatch, userID, role, want)
	}
	return nil
}

func newInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:10]
}
