package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"loginwatch/internal/config"
	"loginwatch/internal/detector"
	"loginwatch/internal/diff"
	"loginwatch/internal/model"
	"loginwatch/internal/normalize"
	"loginwatch/internal/report"
	"loginwatch/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID  int64
	Text    string
	Buttons []string
}

type mockAPI struct {
	mu   sync.Mutex
	sent []sentMsg
	err  error
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, nil
	}
	if m.err != nil {
		return tgbotapi.Message{}, m.err
	}
	s := sentMsg{ChatID: msg.ChatID, Text: msg.Text}
	if kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
		for _, row := range kb.InlineKeyboard {
			for _, btn := range row {
				s.Buttons = append(s.Buttons, *btn.CallbackData)
			}
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, s)
	m.mu.Unlock()
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

func (m *mockAPI) messages() []sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMsg(nil), m.sent...)
}

func (m *mockAPI) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}

type mockMonitor struct {
	targets []model.Target
	rules   *normalize.Ruleset
	event   report.Event
	err     error
	checked []string
}

func (m *mockMonitor) Targets() []model.Target {
	return m.targets
}

func (m *mockMonitor) Ruleset(targetID string) (*normalize.Ruleset, bool) {
	for _, t := range m.targets {
		if t.ID == targetID {
			return m.rules, true
		}
	}
	return nil, false
}

func (m *mockMonitor) CheckTarget(_ context.Context, targetID string) (report.Event, error) {
	m.checked = append(m.checked, targetID)
	return m.event, m.err
}

// --- helpers ---

const (
	pageV1 = "<html>\n<head>\n<link href=\"login.css?v=20240105\">\n</head>\n<body>\n<form></form>\n</body>\n</html>\n"
	pageV2 = "<html>\n<head>\n<link href=\"login.css?v=20240106\">\n</head>\n<body>\n<form></form>\n</body>\n</html>\n"
	pageV3 = "<html>\n<head>\n<link href=\"login.css?v=20240106\">\n<script src=\"https://evil.example/k.js\"></script>\n</head>\n<body>\n<form></form>\n</body>\n</html>\n"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBot(t *testing.T) (*Bot, *mockAPI, *mockMonitor, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	mon := &mockMonitor{
		targets: []model.Target{
			{ID: "bank-a", Name: "Login", Group: "Bank A", URL: "https://a.example/login"},
			{ID: "bank-b", URL: "https://b.example/login"},
		},
		rules: normalize.Compile(normalize.DefaultRules(), discardLogger()),
	}

	api := &mockAPI{}
	b := &Bot{
		api:     api,
		store:   store,
		monitor: mon,
		cfg:     &config.Config{AlertChats: []int64{-100, -200}},
		log:     discardLogger(),
	}
	return b, api, mon, store
}

func seedCapture(t *testing.T, store *storage.SQLite, targetID, html string, class model.Classification) *model.Capture {
	t.Helper()
	c := &model.Capture{
		TargetID:         targetID,
		RawHTML:          html,
		RawDigest:        detector.Digest(html),
		NormalizedDigest: "norm",
		ByteSize:         len(html),
		ChangeDetected:   class.Changed(),
		ChangeDetails:    class,
	}
	if err := store.Append(context.Background(), c); err != nil {
		t.Fatalf("seed capture: %v", err)
	}
	return c
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

func callback(data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		From:    &tgbotapi.User{ID: 1},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
	}
}

// --- handler tests ---

func TestHandleStart(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.handleStart(100)
	requireContains(t, api.lastText(), "Welcome to loginwatch")
}

func TestHandleHelp(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.handleHelp(100)
	requireContains(t, api.lastText(), "/history")
	requireContains(t, api.lastText(), "/diff")
}

func TestHandleTargets(t *testing.T) {
	ctx := context.Background()
	b, api, _, store := newTestBot(t)
	seedCapture(t, store, "bank-a", pageV1, model.FirstCapture)

	b.handleTargets(ctx, 100)
	got := api.lastText()
	requireContains(t, got, "1. Bank A / Login")
	requireContains(t, got, "last: #1")
	requireContains(t, got, "2. bank-b")
	requireContains(t, got, "no captures yet")
}

func TestHandleHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("missing target", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleHistory(ctx, 100, "")
		requireContains(t, api.lastText(), "Usage: /history")
	})

	t.Run("unknown target", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleHistory(ctx, 100, "9")
		requireContains(t, api.lastText(), "target #9 not found")
	})

	t.Run("bad count", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleHistory(ctx, 100, "1 500")
		requireContains(t, api.lastText(), "count must be between 1 and 50")
	})

	t.Run("lists newest first", func(t *testing.T) {
		b, api, _, store := newTestBot(t)
		seedCapture(t, store, "bank-a", pageV1, model.FirstCapture)
		seedCapture(t, store, "bank-a", pageV2, model.Unchanged)
		seedCapture(t, store, "bank-a", pageV3, model.ContentChanged)

		b.handleHistory(ctx, 100, "bank-a 2")
		got := api.lastText()
		requireContains(t, got, "* #3")
		requireContains(t, got, "  #2")
		if strings.Contains(got, "#1 ") {
			t.Errorf("count 2 should hide capture #1, got:\n%s", got)
		}
		if strings.Index(got, "#3") > strings.Index(got, "#2") {
			t.Errorf("expected newest first, got:\n%s", got)
		}
	})
}

func TestHandleDiff(t *testing.T) {
	ctx := context.Background()

	t.Run("needs two captures", func(t *testing.T) {
		b, api, _, store := newTestBot(t)
		seedCapture(t, store, "bank-a", pageV1, model.FirstCapture)
		b.handleDiff(ctx, 100, "1")
		requireContains(t, api.lastText(), "fewer than two captures")
	})

	t.Run("latest two masked away", func(t *testing.T) {
		b, api, _, store := newTestBot(t)
		seedCapture(t, store, "bank-a", pageV1, model.FirstCapture)
		seedCapture(t, store, "bank-a", pageV2, model.Unchanged)

		b.handleDiff(ctx, 100, "1")
		got := api.lastText()
		requireContains(t, got, "Verdict: unchanged after masking")
		requireContains(t, got, "-<link href=\"login.css?v=20240105\">")
		requireContains(t, got, "+<link href=\"login.css?v=20240106\">")
	})

	t.Run("explicit captures", func(t *testing.T) {
		b, api, _, store := newTestBot(t)
		c1 := seedCapture(t, store, "bank-a", pageV1, model.FirstCapture)
		seedCapture(t, store, "bank-a", pageV2, model.Unchanged)
		c3 := seedCapture(t, store, "bank-a", pageV3, model.ContentChanged)

		b.handleDiff(ctx, 100, fmt.Sprintf("1 %d #%d", c1.ID, c3.ID))
		got := api.lastText()
		requireContains(t, got, "Verdict: content changed")
		requireContains(t, got, "+<script src=\"https://evil.example/k.js\"></script>")
	})

	t.Run("capture of another target", func(t *testing.T) {
		b, api, _, store := newTestBot(t)
		seedCapture(t, store, "bank-a", pageV1, model.FirstCapture)
		other := seedCapture(t, store, "bank-b", pageV1, model.FirstCapture)

		b.handleDiff(ctx, 100, fmt.Sprintf("1 1 %d", other.ID))
		requireContains(t, api.lastText(), fmt.Sprintf("capture #%d not found for Bank A / Login", other.ID))
	})

	t.Run("wrong argument count", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleDiff(ctx, 100, "1 2")
		requireContains(t, api.lastText(), "Usage: /diff")
	})
}

func TestHandleCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("reports event", func(t *testing.T) {
		b, api, mon, _ := newTestBot(t)
		mon.event = report.Event{
			Target:         mon.targets[1],
			Classification: model.FetchFailure,
			Err:            errors.New("unexpected status 503"),
			Streak:         1,
		}
		b.handleCheck(ctx, 100, "2")
		if diff := cmp.Diff([]string{"bank-b"}, mon.checked); diff != "" {
			t.Errorf("checked targets mismatch (-want +got):\n%s", diff)
		}
		requireContains(t, api.lastText(), "[bank-b] fetch failed")
		requireContains(t, api.lastText(), "unexpected status 503")
	})

	t.Run("check error", func(t *testing.T) {
		b, api, mon, _ := newTestBot(t)
		mon.err = errors.New("append capture: disk full")
		b.handleCheck(ctx, 100, "1")
		requireContains(t, api.lastText(), "Check of Bank A / Login failed: append capture: disk full")
	})
}

func TestHandleRules(t *testing.T) {
	b, api, mon, _ := newTestBot(t)
	b.handleRules(100, "bank-a")
	got := api.lastText()
	requireContains(t, got, "Masking rules for Bank A / Login")
	requireContains(t, got, "1. asset-version")
	requireContains(t, got, "Digest: "+mon.rules.Digest()[:12])
	if strings.Contains(got, "Skipped") {
		t.Errorf("default rules should all compile, got:\n%s", got)
	}
}

func TestReport(t *testing.T) {
	ctx := context.Background()

	t.Run("content change goes to alert chats", func(t *testing.T) {
		b, api, mon, store := newTestBot(t)
		prev := seedCapture(t, store, "bank-a", pageV2, model.FirstCapture)
		c := seedCapture(t, store, "bank-a", pageV3, model.ContentChanged)
		d := diff.Render(prev.RawHTML, c.RawHTML, prev.Label(), c.Label())

		err := b.Report(ctx, report.Event{Target: mon.targets[0], Classification: model.ContentChanged, Capture: c, Diff: &d})
		if err != nil {
			t.Fatalf("report: %v", err)
		}

		msgs := api.messages()
		if diff := cmp.Diff([]int64{-100, -200}, []int64{msgs[0].ChatID, msgs[1].ChatID}); diff != "" {
			t.Errorf("chat mismatch (-want +got):\n%s", diff)
		}
		wantButtons := []string{fmt.Sprintf("diff:%d", c.ID), fmt.Sprintf("history:%d", c.ID)}
		if diff := cmp.Diff(wantButtons, msgs[0].Buttons); diff != "" {
			t.Errorf("buttons mismatch (-want +got):\n%s", diff)
		}
		requireContains(t, msgs[0].Text, "[Bank A / Login] login page changed")
	})

	t.Run("other events are not pushed", func(t *testing.T) {
		b, api, mon, _ := newTestBot(t)
		for _, class := range []model.Classification{model.FirstCapture, model.Unchanged, model.FetchFailure} {
			ev := report.Event{Target: mon.targets[0], Classification: class, Capture: &model.Capture{ID: 1}}
			if err := b.Report(ctx, ev); err != nil {
				t.Fatalf("report %s: %v", class, err)
			}
		}
		if diff := cmp.Diff(0, len(api.messages())); diff != "" {
			t.Errorf("expected no messages (-want +got):\n%s", diff)
		}
	})

	t.Run("send error", func(t *testing.T) {
		b, api, mon, _ := newTestBot(t)
		api.err = errors.New("forbidden")
		ev := report.Event{Target: mon.targets[0], Classification: model.ContentChanged, Capture: &model.Capture{ID: 1}}
		if err := b.Report(ctx, ev); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestReportFailure(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	if err := b.ReportFailure(context.Background(), "bank-a", errors.New("database is locked")); err != nil {
		t.Fatalf("report failure: %v", err)
	}
	msgs := api.messages()
	if diff := cmp.Diff(2, len(msgs)); diff != "" {
		t.Fatalf("message count mismatch (-want +got):\n%s", diff)
	}
	requireContains(t, msgs[1].Text, "[bank-a] monitoring failure")
	requireContains(t, msgs[1].Text, "database is locked")
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()

	makeMsg := func(cmd, args string) *tgbotapi.Message {
		text := "/" + cmd
		if args != "" {
			text += " " + args
		}
		return &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: 100},
			Text: text,
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len("/" + cmd)},
			},
		}
	}

	b, api, _, _ := newTestBot(t)

	cmds := []struct {
		cmd      string
		args     string
		contains string
	}{
		{"start", "", "Welcome"},
		{"help", "", "/targets"},
		{"targets", "", "Monitored targets"},
		{"history", "1", "No captures for Bank A / Login yet."},
		{"diff", "2", "fewer than two captures"},
		{"rules", "2", "Masking rules for bank-b"},
		{"unknown_cmd", "", "Unknown command"},
	}

	for _, tc := range cmds {
		api.reset()
		b.handleCommand(ctx, makeMsg(tc.cmd, tc.args))
		requireContains(t, api.lastText(), tc.contains)
	}
}

func TestHandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid data format", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleCallback(ctx, callback("nocolon"))
		if diff := cmp.Diff(0, len(api.messages())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleCallback(ctx, callback("diff:abc"))
		if diff := cmp.Diff(0, len(api.messages())); diff != "" {
			t.Errorf("expected no text messages (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown capture", func(t *testing.T) {
		b, api, _, _ := newTestBot(t)
		b.handleCallback(ctx, callback("diff:99"))
		requireContains(t, api.lastText(), "Capture #99 not found.")
	})

	t.Run("diff against predecessor", func(t *testing.T) {
		b, api, _, store := newTestBot(t)
		seedCapture(t, store, "bank-a", pageV2, model.FirstCapture)
		seedCapture(t, store, "bank-b", pageV1, model.FirstCapture)
		c := seedCapture(t, store, "bank-a", pageV3, model.ContentChanged)

		b.handleCallback(ctx, callback(fmt.Sprintf("diff:%d", c.ID)))
		got := api.lastText()
		requireContains(t, got, "Verdict: content changed")
		requireContains(t, got, "=== capture 1 (")
		requireContains(t, got, "+<script src=\"https://evil.example/k.js\"></script>")
	})

	t.Run("diff of first capture", func(t *testing.T) {
		b, api, _, store := newTestBot(t)
		c := seedCapture(t, store, "bank-a", pageV1, model.FirstCapture)
		b.handleCallback(ctx, callback(fmt.Sprintf("diff:%d", c.ID)))
		requireContains(t, api.lastText(), "is the first capture of its target")
	})

	t.Run("history", func(t *testing.T) {
		b, api, _, store := newTestBot(t)
		c := seedCapture(t, store, "bank-b", pageV1, model.FirstCapture)
		b.handleCallback(ctx, callback(fmt.Sprintf("history:%d", c.ID)))
		requireContains(t, api.lastText(), "Captures of bank-b")
	})
}
