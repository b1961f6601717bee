package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equity_bot/pkg/logger"
)

func telegramFixture(t *testing.T, sent chan string) *Telegram {
	t.Helper()
	require.NoError(t, logger.Init(true))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"TestBot","username":"test_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			sent <- r.FormValue("chat_id") + "|" + r.FormValue("text")
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":42,"type":"private"},"text":"x"}}`))
		default:
			_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
		}
	}))
	t.Cleanup(srv.Close)

	bot, err := tgbot.NewBotAPIWithAPIEndpoint("TESTTOKEN", srv.URL+"/bot%s/%s")
	require.NoError(t, err)
	return &Telegram{bot: bot, chatID: 42}
}

func TestTelegramSendsToChat(t *testing.T) {
	sent := make(chan string, 4)
	tg := telegramFixture(t, sent)

	tg.Sendf("signal %s: buy", "PLUG")

	select {
	case got := <-sent:
		assert.Equal(t, "42|signal PLUG: buy", got)
	default:
		t.Fatal("sendMessage not called")
	}
}

func TestTelegramNilSafe(t *testing.T) {
	var tg *Telegram
	tg.Send("dropped")

	disabled := &Telegram{}
	disabled.Send("dropped")
	disabled.Sendf("dropped %d", 1)
}
