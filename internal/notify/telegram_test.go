package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"autoposter/internal/autopost/coordinator"
	"autoposter/internal/autopost/models"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

type fakeSender struct {
	params []*bot.SendMessageParams
	err    error
}

func (f *fakeSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*botModels.Message, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return &botModels.Message{ID: len(f.params)}, nil
}

func TestNotifyRunSkipsCleanRuns(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, -100)

	if err := n.NotifyRun(context.Background(), &coordinator.Summary{Posted: 2, TotalProcessed: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := n.NotifyRun(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.params) != 0 {
		t.Fatalf("expected no messages, got %d", len(sender.params))
	}
}

func TestNotifyRunSendsFailures(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, -100)

	summary := &coordinator.Summary{
		RunID:          "run-1",
		Posted:         1,
		Errors:         1,
		TotalProcessed: 2,
		Results: []models.PostResult{
			{ID: "a", Collection: "posts", Outcome: models.OutcomePosted},
			{ID: "b", Collection: "posts", Title: "Q3 <update>", Outcome: models.OutcomeFailed, Error: "Please reconnect"},
		},
	}
	if err := n.NotifyRun(context.Background(), summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.params) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.params))
	}

	msg := sender.params[0]
	if msg.ChatID != int64(-100) || msg.ParseMode != botModels.ParseModeHTML {
		t.Fatalf("unexpected params: %+v", msg)
	}
	if !strings.Contains(msg.Text, "Q3 &lt;update&gt;") || !strings.Contains(msg.Text, "Please reconnect") {
		t.Fatalf("unexpected text: %s", msg.Text)
	}
	if strings.Contains(msg.Text, "posts/a") {
		t.Fatalf("posted entries must not be listed: %s", msg.Text)
	}
}

func TestNotifyRunTruncatesLongLists(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, 1)

	summary := &coordinator.Summary{}
	for i := 0; i < 15; i++ {
		summary.Results = append(summary.Results, models.PostResult{ID: fmt.Sprintf("p%d", i), Collection: "posts", Outcome: models.OutcomeRetry})
		summary.Errors++
	}
	if err := n.NotifyRun(context.Background(), summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sender.params[0].Text, "and 5 more") {
		t.Fatalf("expected truncation note: %s", sender.params[0].Text)
	}
}

func TestNotifyRunWrapsSendError(t *testing.T) {
	sendErr := errors.New("forbidden: bot was kicked")
	n := NewTelegramNotifier(&fakeSender{err: sendErr}, 1)

	err := n.NotifyRun(context.Background(), &coordinator.Summary{Errors: 1})
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}
