// Package telegram uploads report files to a chat through the Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultAPIBase is the public Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// ErrNotConfigured is returned by New when the token or chat id is missing.
var ErrNotConfigured = errors.New("telegram bot token and chat id are required")

// Config identifies the bot and destination chat.
type Config struct {
	BotToken string
	ChatID   string
	APIBase  string
	Timeout  time.Duration
}

// Notifier sends documents with sendDocument.
type Notifier struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New returns a Notifier. client may be nil.
func New(cfg Config, client *http.Client, logger *zap.Logger) (*Notifier, error) {
	if strings.TrimSpace(cfg.BotToken) == "" || strings.TrimSpace(cfg.ChatID) == "" {
		return nil, ErrNotConfigured
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{cfg: cfg, client: client, logger: logger.Named("telegram")}, nil
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendDocument uploads data as a document named filename.
func (n *Notifier) SendDocument(ctx context.Context, filename string, data io.Reader) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", n.cfg.ChatID); err != nil {
		return fmt.Errorf("write chat_id: %w", err)
	}
	part, err := mw.CreateFormFile("document", filepath.Base(filename))
	if err != nil {
		return fmt.Errorf("create document part: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return fmt.Errorf("copy document: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()
	endpoint := fmt.Sprintf("%s/bot%s/sendDocument", n.cfg.APIBase, n.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return fmt.Errorf("build sendDocument request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := n.client.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("sendDocument: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("read sendDocument response: %w", err)
	}
	var parsed apiResponse
	_ = json.Unmarshal(raw, &parsed)
	if resp.StatusCode != http.StatusOK || !parsed.OK {
		desc := parsed.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return fmt.Errorf("sendDocument failed: status %d: %s", resp.StatusCode, desc)
	}
	n.logger.Info("document sent", zap.String("file", filepath.Base(filename)))
	return nil
}
