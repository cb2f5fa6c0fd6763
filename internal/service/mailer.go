package service

import (
	"context"
	"fmt"
	"net/url"

	"github.com/dtroode/authkeeper-server/internal/logger"
	"github.com/dtroode/authkeeper-server/internal/model"
)

// templateFields lists the fields each template needs.
var templateFields = map[string][]string{
	model.TemplateVerifyEmail:   {"username"},
	model.TemplateVerifyChild:   {"username"},
	model.TemplateResetPassword: {"username"},
	model.TemplateRevertEmail:   {"username"},
}

// CheckTemplate validates that template is known and fields carries what it
// needs.
func CheckTemplate(template string, fields map[string]string) error {
	required, ok := templateFields[template]
	if !ok {
		return fmt.Errorf("unknown template %q: %w", template, model.ErrIllegalInput)
	}
	for _, f := range required {
		if fields[f] == "" {
			return fmt.Errorf("template %q needs field %q: %w", template, f, model.ErrIllegalInput)
		}
	}
	return nil
}

// CallbackURL appends token to the email callback base URL.
func CallbackURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("failed to parse callback url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LogMailer writes outgoing mail to the log instead of delivering it.
type LogMailer struct {
	logger *logger.Logger
}

var _ model.Mailer = (*LogMailer)(nil)

func NewLogMailer(logger *logger.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, email string, template string, fields map[string]string, token string) error {
	if err := CheckTemplate(template, fields); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Mailer: email queued",
		"to", email,
		"template", template,
		"username", fields["username"],
		"has_token", token != "")

	return nil
}
