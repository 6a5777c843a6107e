// Package notify delivers "worth watching" alerts for titles that cleared the
// rating threshold.
//
// The Telegram implementation posts to the Bot API. When no credentials are
// configured New returns a notifier that only logs, so the pipeline never
// needs to know whether alerts are enabled.
package notify

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"torrent-rating-notifier/internal/config"
	"torrent-rating-notifier/internal/observability"
	"torrent-rating-notifier/internal/rating"
	"torrent-rating-notifier/internal/storage"
)

// Notification is everything an alert says about one title.
type Notification struct {
	Record     storage.Record
	Result     *rating.Result
	TorrentURL string
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotificationError wraps a failed delivery. It is never fatal to a run.
type NotificationError struct {
	Key string
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %q: %v", e.Key, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// New builds a Telegram notifier, or a log-only one when credentials are missing.
func New(cfg *config.Config, logger *observability.Logger) Notifier {
	if !cfg.Telegram.Enabled() {
		logger.Warn("Telegram credentials not configured, notifications will only be logged",
			"hint", "set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID",
		)
		return &logNotifier{logger: logger}
	}
	return NewTelegram(cfg.Telegram.APIBaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.GetTelegramTimeout())
}

type logNotifier struct {
	logger *observability.Logger
}

func (l *logNotifier) Notify(_ context.Context, n Notification) error {
	fields := []any{"key", n.Record.Key, "title", n.Record.DisplayTitle}
	if n.Result != nil {
		fields = append(fields, "rating", n.Result.Rating, "detail_url", n.Result.DetailURL)
	}
	l.logger.Info("Recommendation", fields...)
	return nil
}

// FormatMessage renders n as Telegram HTML. Every interpolated value is escaped.
func FormatMessage(n Notification) string {
	title := n.Record.DisplayTitle
	var (
		ratingText = "N/A"
		genre      = "No especificado"
		platforms  = "No disponible en streaming"
		detailURL  string
	)
	if n.Result != nil {
		if n.Result.Title != "" {
			title = n.Result.Title
		}
		ratingText = strconv.FormatFloat(n.Result.Rating, 'f', 1, 64)
		if n.Result.Genre != "" {
			genre = n.Result.Genre
		}
		if len(n.Result.AvailableOn) > 0 {
			platforms = strings.Join(n.Result.AvailableOn, ", ")
		}
		detailURL = n.Result.DetailURL
	} else if n.Record.Rating != nil {
		ratingText = strconv.FormatFloat(*n.Record.Rating, 'f', 1, 64)
	}

	var b strings.Builder
	b.WriteString("🎬 <b>Nueva película/serie con buena nota!</b>\n\n")
	fmt.Fprintf(&b, "<b>Título:</b> %s\n", html.EscapeString(title))
	fmt.Fprintf(&b, "<b>Nota FilmAffinity:</b> ⭐ %s\n", ratingText)
	fmt.Fprintf(&b, "<b>Género:</b> %s\n", html.EscapeString(genre))
	fmt.Fprintf(&b, "<b>Disponible en:</b> %s\n", html.EscapeString(platforms))
	if detailURL != "" {
		fmt.Fprintf(&b, "\n🔗 <a href=\"%s\">Ver en FilmAffinity</a>", html.EscapeString(detailURL))
	}
	if n.TorrentURL != "" {
		fmt.Fprintf(&b, "\n📥 <a href=\"%s\">Encontrada en MejorTorrent</a>", html.EscapeString(n.TorrentURL))
	}
	return b.String()
}
