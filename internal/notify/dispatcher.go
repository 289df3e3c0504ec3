package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/laurilehto/namedrop/internal/metrics"
	"github.com/laurilehto/namedrop/internal/model"
	"github.com/laurilehto/namedrop/internal/repository"
)

// Dispatcher は有効な全チャネルへの通知ファンアウトを行う。
// 各チャネルの失敗は他のチャネルへの送信に影響しない。
type Dispatcher struct {
	channelRepo repository.ChannelRepository
	historyRepo repository.HistoryRepository
	senders     map[model.ChannelType]Sender
	collector   metrics.MetricsCollector
}

// NewDispatcher は全チャネル種別の送信実装を備えたDispatcherを生成する。
// smtpTimeoutはメール送信全体のタイムアウト。0以下の場合はデフォルト値を使う。
// collectorはnilを許容する。
func NewDispatcher(channelRepo repository.ChannelRepository, historyRepo repository.HistoryRepository, smtpTimeout time.Duration, collector metrics.MetricsCollector) *Dispatcher {
	return &Dispatcher{
		channelRepo: channelRepo,
		historyRepo: historyRepo,
		senders: map[model.ChannelType]Sender{
			model.ChannelWebhook:  NewWebhookSender(10 * time.Second),
			model.ChannelTelegram: NewTelegramSender(),
			model.ChannelEmail:    NewEmailSender(smtpTimeout),
			model.ChannelNtfy:     NewNtfySender(10 * time.Second),
		},
		collector: collector,
	}
}

// Dispatch は状態遷移を有効な全チャネルへ通知する。
// NotifyOnフィルタに一致しないチャネルはスキップし、1件以上送信できた場合は
// historyIDの履歴エントリに通知済みフラグを立てる。
// 戻り値は送信成功数と、チャネルごとの失敗エラー。
func (d *Dispatcher) Dispatch(ctx context.Context, domain *model.Domain, event string, newStatus, previousStatus model.DomainStatus, historyID string) (int, []error) {
	channels, err := d.channelRepo.ListEnabled(ctx)
	if err != nil {
		return 0, []error{fmt.Errorf("通知チャネルの取得に失敗しました: %w", err)}
	}

	payload := BuildPayload(domain, event, newStatus, previousStatus)

	sent := 0
	var sendErrors []error
	for _, channel := range channels {
		if !shouldNotify(channel, newStatus) {
			continue
		}

		sender, ok := d.senders[channel.Type]
		if !ok {
			slog.Warn("未知の通知チャネル種別をスキップします",
				slog.String("channel_id", channel.ID),
				slog.String("type", string(channel.Type)))
			continue
		}

		if err := sender.Send(ctx, channel.Config, payload); err != nil {
			slog.Error("通知の送信に失敗しました",
				slog.String("channel_id", channel.ID),
				slog.String("channel_name", channel.Name),
				slog.String("type", string(channel.Type)),
				slog.String("domain", domain.Name),
				slog.String("error", err.Error()))
			sendErrors = append(sendErrors, fmt.Errorf("channel %s (%s): %w", channel.Name, channel.Type, err))
			if d.collector != nil {
				d.collector.RecordNotification(string(channel.Type), false)
			}
			continue
		}
		sent++
		if d.collector != nil {
			d.collector.RecordNotification(string(channel.Type), true)
		}
	}

	if historyID != "" && sent > 0 {
		if err := d.historyRepo.MarkNotified(ctx, historyID); err != nil {
			slog.Error("履歴の通知済みフラグ更新に失敗しました",
				slog.String("history_id", historyID),
				slog.String("error", err.Error()))
		}
	}

	return sent, sendErrors
}

// SendTest は指定チャネルへ固定内容のテスト通知を送信する。
func (d *Dispatcher) SendTest(ctx context.Context, channelID string) error {
	channel, err := d.channelRepo.FindByID(ctx, channelID)
	if err != nil {
		return fmt.Errorf("通知チャネルの取得に失敗しました: %w", err)
	}
	if channel == nil {
		return model.NewChannelNotFoundError(channelID)
	}

	sender, ok := d.senders[channel.Type]
	if !ok {
		return model.NewUnknownChannelTypeError(string(channel.Type))
	}

	payload := &Payload{
		Event:          "test",
		Domain:         "example.com",
		PreviousStatus: string(model.StatusRegistered),
		NewStatus:      string(model.StatusAvailable),
		CheckedAt:      time.Now(),
		Tags:           []string{"test"},
		Message:        "\U0001F7E2 example.com is now available! (test notification)",
	}
	return sender.Send(ctx, channel.Config, payload)
}

// shouldNotify はチャネルのNotifyOnフィルタを評価する。空のフィルタは全状態に一致する。
func shouldNotify(channel *model.NotificationChannel, status model.DomainStatus) bool {
	if len(channel.NotifyOn) == 0 {
		return true
	}
	for _, s := range channel.NotifyOn {
		if s == status {
			return true
		}
	}
	return false
}
