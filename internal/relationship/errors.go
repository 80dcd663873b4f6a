package relationship

import "errors"

var (
	ErrLinkNotFound    = errors.New("link not found")
	ErrInviteNotFound  = errors.New("invalid invite code")
	ErrInviteNotUsable = errors.New("invite not usable")
	ErrInviteExpired   = errors.New("invite expired")
	ErrAlreadyLinked   = errors.New("student already linked to a parent")
	ErrUserNotFound    = errors.New("user not found")
	ErrRoleMismatch    = errors.New("user has the wrong role for this link")

	errCodeTaken = errors.New("invite code taken")
)
