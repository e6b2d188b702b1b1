package lock

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/docvault/docvault/internal/document"
	"github.com/docvault/docvault/internal/models"
	"github.com/docvault/docvault/internal/users"
)

// SMTPNotifier emails the displaced holder of an overridden lock.
type SMTPNotifier struct {
	addr     string
	from     string
	siteName string
	users    *users.Service
	send     func(addr, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(addr, from, siteName string, users *users.Service) *SMTPNotifier {
	return &SMTPNotifier{
		addr:     addr,
		from:     from,
		siteName: siteName,
		users:    users,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

func (n *SMTPNotifier) NotifyOverride(ctx context.Context, prev *Lock, takenBy *models.User, doc *document.Document) error {
	holder, err := n.users.GetBySub(ctx, prev.HolderSub)
	if err != nil {
		return err
	}
	if holder == nil || holder.Email == "" {
		return nil
	}

	subject := fmt.Sprintf("%s: %s has overridden your lock on %s", n.siteName, takenBy.Display(), doc.Title)
	body := fmt.Sprintf(
		"%s has overridden your lock on the document %q.\r\n\r\n"+
			"Any changes you have not saved will be lost. You can take the lock back by reopening the document.",
		takenBy.Display(), doc.Title,
	)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", holder.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")

	return n.send(n.addr, n.from, []string{holder.Email}, []byte(b.String()))
}
