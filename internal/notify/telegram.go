package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/guonaihong/gout"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/netopshq/switchyard/config"
	"github.com/netopshq/switchyard/internal/cycle"
	"github.com/netopshq/switchyard/internal/domain"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram pushes maintenance outcome messages to a chat. When disabled or
// unconfigured every send is a silent no-op, so callers never guard.
type Telegram struct {
	enabled  bool
	botToken string
	chatID   string
	apiBase  string
}

func NewTelegram(cfg config.TelegramConfig) *Telegram {
	return &Telegram{
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != "",
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		apiBase:  defaultAPIBase,
	}
}

// Subscribe wires the notifier to terminal job events. Delivery is async so
// a slow Telegram API never delays job finalization.
func (t *Telegram) Subscribe(bus EventBus.Bus) error {
	return bus.SubscribeAsync(cycle.TopicJobFinished, t.onJobFinished, false)
}

func (t *Telegram) onJobFinished(job *domain.JobRun) {
	var text string
	switch job.Status {
	case domain.JobStatusSuccess:
		text = fmt.Sprintf("✅ <b>%s</b>\n%s completed in %s.",
			jobTitle(job), job.DeviceName, fmtDuration(job.DurationSeconds))
	case domain.JobStatusTimeout:
		text = fmt.Sprintf("⚠️ <b>%s</b>\n%s timed out after %s.\n%s",
			jobTitle(job), job.DeviceName, fmtDuration(job.DurationSeconds), job.ErrorMessage)
	case domain.JobStatusFailed:
		text = fmt.Sprintf("❌ <b>%s</b>\n%s failed.\n%s",
			jobTitle(job), job.DeviceName, job.ErrorMessage)
	default:
		return
	}
	if err := t.Send(text); err != nil {
		zap.L().Warn("telegram notify failed", zap.Error(err))
	}
}

// NotifyDeviceBackOnline announces a rebooted device reporting in again.
func (t *Telegram) NotifyDeviceBackOnline(deviceName string, downFor time.Duration) {
	text := fmt.Sprintf("✅ <b>Reboot complete</b>\n%s is back online after %s.",
		deviceName, fmtDuration(int(downFor.Seconds())))
	if err := t.Send(text); err != nil {
		zap.L().Warn("telegram notify failed", zap.Error(err))
	}
}

// DeviceWaiter reports whether a device came back online within a window.
// *unifi.Client satisfies it.
type DeviceWaiter interface {
	WaitDeviceOnline(ctx context.Context, deviceID string, window, poll time.Duration) bool
}

// WatchRebootedDevice blocks until the device reports online or the window
// elapses, then pushes the matching message. Run it in its own goroutine
// right after a reboot command is accepted.
func (t *Telegram) WatchRebootedDevice(ctx context.Context, w DeviceWaiter, deviceID, deviceName string, window, poll time.Duration) {
	start := time.Now()
	if w.WaitDeviceOnline(ctx, deviceID, window, poll) {
		t.NotifyDeviceBackOnline(deviceName, time.Since(start))
		return
	}
	t.NotifyDeviceRebootTimeout(deviceName, window)
}

// NotifyDeviceRebootTimeout announces a rebooted device that never came back.
func (t *Telegram) NotifyDeviceRebootTimeout(deviceName string, waited time.Duration) {
	text := fmt.Sprintf("⚠️ <b>Reboot timeout</b>\n%s did not report back within %s.",
		deviceName, fmtDuration(int(waited.Seconds())))
	if err := t.Send(text); err != nil {
		zap.L().Warn("telegram notify failed", zap.Error(err))
	}
}

// Send pushes one HTML-formatted message.
func (t *Telegram) Send(text string) error {
	if !t.enabled {
		return nil
	}
	code := 0
	err := gout.POST(fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)).
		SetJSON(gout.H{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		Code(&code).
		Do()
	if err != nil {
		return errors.Wrap(err, "telegram send")
	}
	if code != http.StatusOK {
		return errors.Errorf("telegram send: status %d", code)
	}
	return nil
}

func jobTitle(job *domain.JobRun) string {
	switch job.JobType {
	case domain.JobTypePoECycle:
		return "PoE cycle"
	case domain.JobTypeReboot:
		return "Device reboot"
	}
	return "Port cycle"
}

func fmtDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
}
