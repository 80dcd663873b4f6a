package relationship

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"allowance/internal/auth"
	"allowance/internal/db"

	"github.com/jmoiron/sqlx"
)

const linkSelect = `
	SELECT l.id, l.parent_id, p.name AS parent_name, p.email AS parent_email,
	       l.student_id, s.name AS student_name, s.email AS student_email,
	       l.status, l.created_at, l.revoked_at
	FROM parent_student_links l
	JOIN users p ON p.id = l.parent_id
	JOIN users s ON s.id = l.student_id
`

const inviteColumns = `id, parent_id, code, student_email, status, expires_at, used_at, created_at`

type repository struct {
	db *sqlx.DB
}

func NewRepository(conn *sqlx.DB) Repository {
	return &repository{db: conn}
}

func (r *repository) ParentLinkedToStudent(ctx context.Context, parentID, studentID int) (bool, error) {
	return db.Exists(ctx, r.db, `
		SELECT EXISTS(
			SELECT 1 FROM parent_student_links
			WHERE parent_id = $1 AND student_id = $2 AND status = 'ACTIVE'
		)
	`, parentID, studentID)
}

func (r *repository) ListStudents(ctx context.Context, parentID int) ([]Link, error) {
	links := []Link{}
	err := r.db.SelectContext(ctx, &links,
		linkSelect+` WHERE l.parent_id = $1 AND l.status = 'ACTIVE' ORDER BY l.created_at DESC, l.id DESC`,
		parentID,
	)
	if err != nil {
		return nil, err
	}
	return links, nil
}

func (r *repository) ParentOf(ctx context.Context, studentID int) (*Link, error) {
	var l Link
	err := r.db.GetContext(ctx, &l,
		linkSelect+` WHERE l.student_id = $1 AND l.status = 'ACTIVE' ORDER BY l.created_at DESC LIMIT 1`,
		studentID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *repository) Link(ctx context.Context, parentID, studentID int) (*Link, error) {
	var link *Link
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		link, err = linkTx(ctx, tx, parentID, studentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (r *repository) Revoke(ctx context.Context, parentID, studentID int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE parent_student_links SET status = 'REVOKED', revoked_at = NOW()
		WHERE parent_id = $1 AND student_id = $2 AND status = 'ACTIVE'
	`, parentID, studentID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *repository) UserRole(ctx context.Context, userID int) (auth.Role, error) {
	var role auth.Role
	err := r.db.GetContext(ctx, &role, `SELECT role FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return role, nil
}

func (r *repository) CreateInvite(ctx context.Context, inv *Invite) (*Invite, error) {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO parent_invites (parent_id, code, student_email, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at
	`, inv.ParentID, inv.Code, inv.StudentEmail, inv.ExpiresAt).Scan(&inv.ID, &inv.Status, &inv.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "uniq_invite_code") {
			return nil, errCodeTaken
		}
		return nil, fmt.Errorf("create invite: %w", err)
	}
	return inv, nil
}

func (r *repository) ListInvites(ctx context.Context, parentID int) ([]Invite, error) {
	invites := []Invite{}
	err := r.db.SelectContext(ctx, &invites,
		`SELECT `+inviteColumns+` FROM parent_invites WHERE parent_id = $1 ORDER BY created_at DESC, id DESC`,
		parentID,
	)
	if err != nil {
		return nil, err
	}
	return invites, nil
}

func (r *repository) AcceptInvite(ctx context.Context, studentID int, code string, now time.Time) (*Link, error) {
	var link *Link
	expired := false

	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var inv Invite
		err := tx.GetContext(ctx, &inv,
			`SELECT `+inviteColumns+` FROM parent_invites WHERE code = $1 FOR UPDATE`,
			code,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrInviteNotFound
			}
			return err
		}

		if inv.Status != InvitePending {
			return fmt.Errorf("%w (%s)", ErrInviteNotUsable, inv.Status)
		}
		if inv.Expired(now) {
			expired = true
			_, err := tx.ExecContext(ctx, `UPDATE parent_invites SET status = 'EXPIRED' WHERE id = $1`, inv.ID)
			return err
		}

		link, err = linkTx(ctx, tx, inv.ParentID, studentID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE parent_invites SET status = 'USED', used_at = $1 WHERE id = $2`,
			now, inv.ID,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, ErrInviteExpired
	}
	return link, nil
}

// linkTx activates the (parent, student) link. The student's user row is
// locked first so two links for the same student cannot both succeed.
func linkTx(ctx context.Context, tx *sqlx.Tx, parentID, studentID int) (*Link, error) {
	var locked int
	err := tx.GetContext(ctx, &locked, `SELECT id FROM users WHERE id = $1 FOR NO KEY UPDATE`, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	other, err := db.Exists(ctx, tx, `
		SELECT EXISTS(
			SELECT 1 FROM parent_student_links
			WHERE student_id = $1 AND status = 'ACTIVE' AND parent_id <> $2
		)
	`, studentID, parentID)
	if err != nil {
		return nil, err
	}
	if other {
		return nil, ErrAlreadyLinked
	}

	var id int
	err = tx.GetContext(ctx, &id, `
		INSERT INTO parent_student_links (parent_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (parent_id, student_id) DO UPDATE SET status = 'ACTIVE', revoked_at = NULL
		RETURNING id
	`, parentID, studentID)
	if err != nil {
		return nil, fmt.Errorf("upsert link: %w", err)
	}

	var l Link
	if err := tx.GetContext(ctx, &l, linkSelect+` WHERE l.id = $1`, id); err != nil {
		return nil, err
	}
	return &l, nil
}
