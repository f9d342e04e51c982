package telegram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type upload struct {
	path     string
	chatID   string
	filename string
	body     string
}

func fakeBotAPI(t *testing.T, status int, reply string) (*httptest.Server, <-chan upload) {
	t.Helper()
	got := make(chan upload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := upload{path: r.URL.Path}
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			u.chatID = r.FormValue("chat_id")
			if f, hdr, err := r.FormFile("document"); err == nil {
				b, _ := io.ReadAll(f)
				u.filename, u.body = hdr.Filename, string(b)
				_ = f.Close()
			}
		}
		got <- u
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestSendDocument(t *testing.T) {
	t.Parallel()

	srv, got := fakeBotAPI(t, http.StatusOK, `{"ok":true,"result":{}}`)
	n, err := New(Config{BotToken: "123:abc", ChatID: "-100", APIBase: srv.URL + "/"}, srv.Client(), nil)
	require.NoError(t, err)

	require.NoError(t, n.SendDocument(context.Background(), "data/subscribe.txt", strings.NewReader("=== 机场订阅 ===\n")))
	u := <-got
	require.Equal(t, "/bot123:abc/sendDocument", u.path)
	require.Equal(t, "-100", u.chatID)
	require.Equal(t, "subscribe.txt", u.filename)
	require.Equal(t, "=== 机场订阅 ===\n", u.body)
}

func TestSendDocumentAPIError(t *testing.T) {
	t.Parallel()

	srv, _ := fakeBotAPI(t, http.StatusBadRequest, `{"ok":false,"description":"Bad Request: chat not found"}`)
	n, err := New(Config{BotToken: "t", ChatID: "c", APIBase: srv.URL}, nil, nil)
	require.NoError(t, err)

	err = n.SendDocument(context.Background(), "r.txt", strings.NewReader("x"))
	require.ErrorContains(t, err, "chat not found")
	require.ErrorContains(t, err, "status 400")
}

func TestNewRequiresSecrets(t *testing.T) {
	t.Parallel()

	_, err := New(Config{BotToken: "t"}, nil, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = New(Config{ChatID: "c"}, nil, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}
