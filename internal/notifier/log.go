package notifier

import (
	"context"
	"log/slog"

	"github.com/amishk599/applyhook/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes enriched applications to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each payload via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the payload. Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(_ context.Context, p model.Payload) error {
	args := []any{
		"apply_id", p.ApplyID,
		"user_name", p.UserName,
		"vacancy_title", p.VacancyTitle,
		"experience", p.Experience,
		"link", p.Link,
		"habr_profile_link", p.HabrProfileLink,
	}
	if p.Email != nil {
		args = append(args, "email", *p.Email)
	}
	if p.Telegram != nil {
		args = append(args, "telegram", *p.Telegram)
	}
	if p.CoverLetter != "" {
		args = append(args, "cover_letter", p.CoverLetter)
	}
	n.logger.Info("new application", args...)
	return nil
}
