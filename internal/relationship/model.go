package relationship

import "time"

type LinkStatus string

const (
	LinkActive  LinkStatus = "ACTIVE"
	LinkRevoked LinkStatus = "REVOKED"
)

type InviteStatus string

const (
	InvitePending InviteStatus = "PENDING"
	InviteUsed    InviteStatus = "USED"
	InviteRevoked InviteStatus = "REVOKED"
	InviteExpired InviteStatus = "EXPIRED"
)

// InviteTTL is how long a parent invite stays usable.
const InviteTTL = 7 * 24 * time.Hour

type Link struct {
	ID           int        `db:"id" json:"id"`
	ParentID     int        `db:"parent_id" json:"parent_id"`
	ParentName   string     `db:"parent_name" json:"parent_name"`
	ParentEmail  string     `db:"parent_email" json:"parent_email"`
	StudentID    int        `db:"student_id" json:"student_id"`
	StudentName  string     `db:"student_name" json:"student_name"`
	StudentEmail string     `db:"student_email" json:"student_email"`
	Status       LinkStatus `db:"status" json:"status"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	RevokedAt    *time.Time `db:"revoked_at" json:"revoked_at"`
}

type Invite struct {
	ID           int          `db:"id" json:"-"`
	ParentID     int          `db:"parent_id" json:"parent_id"`
	Code         string       `db:"code" json:"code"`
	StudentEmail *string      `db:"student_email" json:"student_email"`
	Status       InviteStatus `db:"status" json:"status"`
	ExpiresAt    time.Time    `db:"expires_at" json:"expires_at"`
	UsedAt       *time.Time   `db:"used_at" json:"used_at"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

// Expired reports whether the invite can no longer be used at now.
func (i *Invite) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
