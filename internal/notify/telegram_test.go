package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/netopshq/switchyard/config"
	"github.com/netopshq/switchyard/internal/domain"
)

func TestFmtDuration(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{0, "0s"},
		{45, "45s"},
		{60, "1m 0s"},
		{150, "2m 30s"},
		{3599, "59m 59s"},
		{3600, "1h 0m"},
		{7260, "2h 1m"},
	}
	for _, tc := range cases {
		if got := fmtDuration(tc.seconds); got != tc.want {
			t.Errorf("fmtDuration(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestJobTitle(t *testing.T) {
	if got := jobTitle(&domain.JobRun{JobType: domain.JobTypePortCycle}); got != "Port cycle" {
		t.Errorf("port cycle title = %q", got)
	}
	if got := jobTitle(&domain.JobRun{JobType: domain.JobTypePoECycle}); got != "PoE cycle" {
		t.Errorf("poe cycle title = %q", got)
	}
	if got := jobTitle(&domain.JobRun{JobType: domain.JobTypeReboot}); got != "Device reboot" {
		t.Errorf("reboot title = %q", got)
	}
}

func TestSendIsNoOpWhenDisabled(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	tg := NewTelegram(config.TelegramConfig{Enabled: false, BotToken: "token", ChatID: "1"})
	tg.apiBase = srv.URL
	if err := tg.Send("hello"); err != nil {
		t.Fatalf("disabled send: %v", err)
	}

	// Missing credentials also disable delivery regardless of the flag.
	tg = NewTelegram(config.TelegramConfig{Enabled: true})
	tg.apiBase = srv.URL
	if err := tg.Send("hello"); err != nil {
		t.Fatalf("unconfigured send: %v", err)
	}
	if calls != 0 {
		t.Errorf("disabled notifier made %d API calls", calls)
	}
}

func TestSendDeliversMessage(t *testing.T) {
	var mu sync.Mutex
	var gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(config.TelegramConfig{Enabled: true, BotToken: "token123", ChatID: "-100"})
	tg.apiBase = srv.URL
	if err := tg.Send("<b>hi</b>"); err != nil {
		t.Fatalf("send: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/bottoken123/sendMessage" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["chat_id"] != "-100" {
		t.Errorf("chat_id = %v", gotBody["chat_id"])
	}
	if gotBody["text"] != "<b>hi</b>" {
		t.Errorf("text = %v", gotBody["text"])
	}
	if gotBody["parse_mode"] != "HTML" {
		t.Errorf("parse_mode = %v", gotBody["parse_mode"])
	}
}

func TestSendReportsAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	tg := NewTelegram(config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "1"})
	tg.apiBase = srv.URL
	err := tg.Send("hello")
	if err == nil {
		t.Fatal("expected an error from a 400 response")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("err = %v, want the status code surfaced", err)
	}
}

type fakeWaiter struct {
	online bool
	gotID  string
}

func (w *fakeWaiter) WaitDeviceOnline(ctx context.Context, deviceID string, window, poll time.Duration) bool {
	w.gotID = deviceID
	return w.online
}

func TestWatchRebootedDeviceNotifies(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		texts = append(texts, body["text"].(string))
		mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "1"})
	tg.apiBase = srv.URL

	waiter := &fakeWaiter{online: true}
	tg.WatchRebootedDevice(context.Background(), waiter, "abc123", "core-sw", time.Minute, time.Second)
	if waiter.gotID != "abc123" {
		t.Errorf("waited on device %q, want abc123", waiter.gotID)
	}

	tg.WatchRebootedDevice(context.Background(), &fakeWaiter{online: false}, "abc123", "core-sw", time.Minute, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 2 {
		t.Fatalf("sent %d messages, want 2", len(texts))
	}
	if !strings.Contains(texts[0], "back online") || !strings.Contains(texts[0], "core-sw") {
		t.Errorf("back-online message = %q", texts[0])
	}
	if !strings.Contains(texts[1], "did not report back within 1m 0s") {
		t.Errorf("timeout message = %q", texts[1])
	}
}

func TestOnJobFinishedMessageShape(t *testing.T) {
	var mu sync.Mutex
	var texts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		texts = append(texts, body["text"].(string))
		mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "1"})
	tg.apiBase = srv.URL

	tg.onJobFinished(&domain.JobRun{
		JobType: domain.JobTypePortCycle, Status: domain.JobStatusSuccess,
		DeviceName: "core-sw Port 5", DurationSeconds: 95,
	})
	tg.onJobFinished(&domain.JobRun{
		JobType: domain.JobTypePortCycle, Status: domain.JobStatusTimeout,
		DeviceName: "core-sw Port 5", DurationSeconds: 300,
		ErrorMessage: "port never reported down",
	})
	tg.onJobFinished(&domain.JobRun{
		JobType: domain.JobTypePortCycle, Status: domain.JobStatusFailed,
		DeviceName: "core-sw Port 5", ErrorMessage: "controller unreachable",
	})
	// Non-terminal and unknown statuses produce nothing.
	tg.onJobFinished(&domain.JobRun{Status: domain.JobStatusRunning})

	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 3 {
		t.Fatalf("sent %d messages, want 3", len(texts))
	}
	if !strings.Contains(texts[0], "1m 35s") {
		t.Errorf("success message missing duration: %q", texts[0])
	}
	if !strings.Contains(texts[1], "port never reported down") {
		t.Errorf("timeout message missing cause: %q", texts[1])
	}
	if !strings.Contains(texts[2], "controller unreachable") {
		t.Errorf("failure message missing cause: %q", texts[2])
	}
}
