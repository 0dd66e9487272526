package notification

import (
	"context"
	"embed"
	"fmt"
	"net/mail"

	"github.com/zerlake/thesisai-philippines-sub009/core"
)

const digestTemplate = "bell_digest"

// Templates holds the email templates of this package, to be parsed with core.ParseEmailTemplates.
//go:embed templates
var Templates embed.FS

// Digest emails a user the unread items of their bell.
type Digest struct {
	repo   Repository
	email  core.EmailService
	logger core.Logger
}

func NewDigest(repo Repository, email core.EmailService, logger core.Logger) *Digest {
	return &Digest{repo: repo, email: email, logger: logger}
}

// Send emails the digest of `userID` to `to`. Nothing is sent when there is nothing unread.
func (d *Digest) Send(ctx context.Context, userID string, to mail.Address) (sent bool, err error) {
	bell := NewBell(d.repo, nil, d.logger, Options{})
	if err = bell.Mount(ctx, userID); err != nil {
		return false, err
	}
	defer bell.Unmount()

	snap := bell.Snapshot()
	if snap.Badge == 0 {
		return false, nil
	}

	d.email.SendMessages(&core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      fmt.Sprintf("You have %s unread items", snap.BadgeLabel),
		TemplateName: digestTemplate,
		TemplateData: snap,
	})
	return true, nil
}
