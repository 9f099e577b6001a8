// Package mailer contacts the panelists. Delivery sits behind a small
// interface so the service can run with log-only delivery in development
// while a real transport slots in unchanged.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/StudiUM/concordance/internal/i18n"
	"github.com/StudiUM/concordance/internal/model"
	"github.com/StudiUM/concordance/internal/store"
)

// ErrNoPanelQuiz is returned when panelists are contacted before the panel
// quiz exists; the invitation has nothing to link to.
var ErrNoPanelQuiz = errors.New("panel quiz not generated")

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string, replyTo model.Actor) error
}

// LogMailer logs outgoing messages instead of delivering them.
type LogMailer struct{}

// Send implements Mailer.
func (LogMailer) Send(ctx context.Context, to, subject, htmlBody string, replyTo model.Actor) error {
	slog.Info("outgoing mail", "to", to, "subject", subject, "reply_to", replyTo.Email, "bytes", len(htmlBody))
	return nil
}

// Service sends instructor messages to panelists and keeps the contact
// bookkeeping.
type Service struct {
	store  *store.Store
	mailer Mailer
	cfg    model.ServiceConfig
}

// New creates a mail service.
func New(st *store.Store, m Mailer, cfg model.ServiceConfig) *Service {
	return &Service{store: st, mailer: m, cfg: cfg}
}

// SendMessageToPanelists emails the instructor's message to the selected
// panelists of the session, with a link to the panel quiz appended. Replies
// go to the actor. A failed delivery is logged and skipped; the returned
// count holds the successful sends, each of which bumps the panelist's
// contact counter and leaves an audit event.
func (s *Service) SendMessageToPanelists(ctx context.Context, actor model.Actor, sess model.Session,
	panelistIDs []int64, subject, message string) (int, error) {

	if sess.PanelQuizID == nil {
		return 0, ErrNoPanelQuiz
	}
	panelists, err := s.store.PanelistsByIDs(sess.ID, panelistIDs)
	if err != nil {
		return 0, fmt.Errorf("load panelists: %w", err)
	}

	link := fmt.Sprintf("%s/course/%d/quiz/%d", s.cfg.QuizBaseURL, sess.PanelCourseID, *sess.PanelQuizID)
	body := message +
		"<p>" + i18n.Td(ctx, "email.quizlink", map[string]any{"URL": link}) + "</p>" +
		"<p>" + i18n.Td(ctx, "email.signoff", map[string]any{"Sender": actor.FullName()}) + "</p>"

	sent := 0
	for _, p := range panelists {
		if err := s.mailer.Send(ctx, p.Email, subject, body, actor); err != nil {
			slog.Warn("failed to contact panelist", "session", sess.ID, "panelist", p.ID, "error", err)
			continue
		}
		if err := s.store.IncrementEmailsSent(p.ID); err != nil {
			return sent, fmt.Errorf("record contact of panelist %d: %w", p.ID, err)
		}
		if _, err := s.store.InsertEvent(model.Event{
			Type:          model.EventEmailSent,
			ObjectID:      sess.ID,
			UserID:        actor.UserID,
			RelatedUserID: p.ID,
		}); err != nil {
			return sent, fmt.Errorf("record contact event: %w", err)
		}
		sent++
	}
	return sent, nil
}
