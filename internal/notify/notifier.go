package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"allowance/internal/logger"
	"allowance/internal/money"
	"allowance/internal/relationship"
	"allowance/internal/user"
	"allowance/internal/wallet"
)

const (
	TypeDepositReceipt = "deposit_receipt"
	TypeDepositSent    = "deposit_sent"
	TypeLimitAlert     = "daily_limit_alert"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

type Directory interface {
	GetByID(ctx context.Context, userID int) (*user.User, error)
}

type Guardians interface {
	MyParent(ctx context.Context, studentID int) (*relationship.Link, error)
}

// Notifier turns committed ledger events into queued emails.
type Notifier struct {
	queue   Enqueuer
	users   Directory
	parents Guardians
}

func NewNotifier(queue Enqueuer, users Directory, parents Guardians) *Notifier {
	return &Notifier{queue: queue, users: users, parents: parents}
}

// DepositReceived emails the student a receipt and, when someone else made
// the deposit, a confirmation to them.
func (n *Notifier) DepositReceived(ctx context.Context, r wallet.DepositReceipt) error {
	student, err := n.users.GetByID(ctx, r.StudentID)
	if err != nil {
		return fmt.Errorf("load student: %w", err)
	}

	lines := breakdown(r.Transactions)
	body := fmt.Sprintf(`Hi %s,

You received %s %s.

%s

- Allowance`, student.Name, money.Format(r.Amount), r.Currency, lines)

	err = n.queue.Enqueue(ctx, Job{
		Type:    TypeDepositReceipt,
		To:      student.Email,
		Name:    student.Name,
		Subject: fmt.Sprintf("You received %s %s", money.Format(r.Amount), r.Currency),
		Body:    body,
	})
	if err != nil {
		return err
	}

	if r.ActorID == 0 || r.ActorID == r.StudentID {
		return nil
	}
	actor, err := n.users.GetByID(ctx, r.ActorID)
	if err != nil {
		return fmt.Errorf("load depositor: %w", err)
	}
	return n.queue.Enqueue(ctx, Job{
		Type:    TypeDepositSent,
		To:      actor.Email,
		Name:    actor.Name,
		Subject: fmt.Sprintf("Deposit to %s confirmed", student.Name),
		Body: fmt.Sprintf(`Hi %s,

Your deposit of %s %s to %s went through.

%s

- Allowance`, actor.Name, money.Format(r.Amount), r.Currency, student.Name, lines),
	})
}

// DailyLimitAlert warns the student and their linked parent, if any.
func (n *Notifier) DailyLimitAlert(ctx context.Context, a wallet.LimitAlert) error {
	student, err := n.users.GetByID(ctx, a.StudentID)
	if err != nil {
		return fmt.Errorf("load student: %w", err)
	}

	subject := "Daily limit almost reached"
	if a.Level == wallet.AlertReached {
		subject = "Daily limit reached"
	}
	status := fmt.Sprintf("%s of %s %s spent today.", money.Format(a.Spent), money.Format(a.Limit), a.Currency)

	err = n.queue.Enqueue(ctx, Job{
		Type:    TypeLimitAlert,
		To:      student.Email,
		Name:    student.Name,
		Subject: subject,
		Body:    fmt.Sprintf("Hi %s,\n\n%s\n\n- Allowance", student.Name, status),
	})
	if err != nil {
		return err
	}

	if n.parents == nil {
		return nil
	}
	link, err := n.parents.MyParent(ctx, a.StudentID)
	if err != nil {
		if errors.Is(err, relationship.ErrLinkNotFound) {
			return nil
		}
		return fmt.Errorf("load parent: %w", err)
	}
	logger.Debug("forwarding limit alert to parent", "student_id", a.StudentID, "parent_id", link.ParentID)
	return n.queue.Enqueue(ctx, Job{
		Type:    TypeLimitAlert,
		To:      link.ParentEmail,
		Name:    link.ParentName,
		Subject: fmt.Sprintf("%s: %s", student.Name, strings.ToLower(subject)),
		Body:    fmt.Sprintf("Hi %s,\n\n%s: %s\n\n- Allowance", link.ParentName, student.Name, status),
	})
}

func breakdown(txns []wallet.Transaction) string {
	var b strings.Builder
	for i, t := range txns {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-8s %s", t.Bucket, money.Format(t.Amount))
	}
	return b.String()
}
