package app

import (
	"testing"
	"time"

	"github.com/netopshq/switchyard/internal/domain"
)

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, time.UTC)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

func TestNextRunTime(t *testing.T) {
	cases := []struct {
		name       string
		frequency  string
		timeOfDay  string
		dayOfWeek  int
		dayOfMonth int
		from       string
		want       string
	}{
		{name: "hourly rounds to the next hour", frequency: domain.FrequencyHourly,
			from: "2026-03-10 14:23", want: "2026-03-10 15:00"},
		{name: "hourly on the hour still advances", frequency: domain.FrequencyHourly,
			from: "2026-03-10 14:00", want: "2026-03-10 15:00"},
		{name: "daily before the slot runs today", frequency: domain.FrequencyDaily,
			timeOfDay: "22:30", from: "2026-03-10 14:00", want: "2026-03-10 22:30"},
		{name: "daily past the slot rolls to tomorrow", frequency: domain.FrequencyDaily,
			timeOfDay: "03:00", from: "2026-03-10 14:00", want: "2026-03-11 03:00"},
		{name: "weekly lands on the configured weekday", frequency: domain.FrequencyWeekly,
			timeOfDay: "06:00", dayOfWeek: 0, // Sunday; 2026-03-10 is a Tuesday
			from: "2026-03-10 14:00", want: "2026-03-15 06:00"},
		{name: "weekly same day before the slot runs today", frequency: domain.FrequencyWeekly,
			timeOfDay: "18:00", dayOfWeek: 2,
			from: "2026-03-10 14:00", want: "2026-03-10 18:00"},
		{name: "weekly same day past the slot waits a week", frequency: domain.FrequencyWeekly,
			timeOfDay: "06:00", dayOfWeek: 2,
			from: "2026-03-10 14:00", want: "2026-03-17 06:00"},
		{name: "monthly before the slot runs this month", frequency: domain.FrequencyMonthly,
			timeOfDay: "01:00", dayOfMonth: 15,
			from: "2026-03-10 14:00", want: "2026-03-15 01:00"},
		{name: "monthly past the slot rolls to next month", frequency: domain.FrequencyMonthly,
			timeOfDay: "01:00", dayOfMonth: 5,
			from: "2026-03-10 14:00", want: "2026-04-05 01:00"},
		{name: "monthly day 31 clamps in short months", frequency: domain.FrequencyMonthly,
			timeOfDay: "01:00", dayOfMonth: 31,
			from: "2026-02-10 14:00", want: "2026-02-28 01:00"},
		{name: "monthly december rolls into january", frequency: domain.FrequencyMonthly,
			timeOfDay: "01:00", dayOfMonth: 5,
			from: "2026-12-10 14:00", want: "2027-01-05 01:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := nextRunTime(tc.frequency, tc.timeOfDay, tc.dayOfWeek, tc.dayOfMonth, at(t, tc.from))
			if err != nil {
				t.Fatalf("nextRunTime: %v", err)
			}
			if want := at(t, tc.want); !got.Equal(want) {
				t.Errorf("next = %s, want %s", got, want)
			}
		})
	}
}

func TestNextRunTimeRejectsBadInput(t *testing.T) {
	from := at(t, "2026-03-10 14:00")
	cases := []struct {
		name       string
		frequency  string
		timeOfDay  string
		dayOfWeek  int
		dayOfMonth int
	}{
		{name: "unknown frequency", frequency: "fortnightly", timeOfDay: "01:00"},
		{name: "missing time of day", frequency: domain.FrequencyDaily, timeOfDay: ""},
		{name: "hour out of range", frequency: domain.FrequencyDaily, timeOfDay: "24:00"},
		{name: "minute out of range", frequency: domain.FrequencyDaily, timeOfDay: "10:60"},
		{name: "non numeric time", frequency: domain.FrequencyDaily, timeOfDay: "noon"},
		{name: "weekday out of range", frequency: domain.FrequencyWeekly, timeOfDay: "01:00", dayOfWeek: 7},
		{name: "month day zero", frequency: domain.FrequencyMonthly, timeOfDay: "01:00", dayOfMonth: 0},
		{name: "month day too large", frequency: domain.FrequencyMonthly, timeOfDay: "01:00", dayOfMonth: 32},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := nextRunTime(tc.frequency, tc.timeOfDay, tc.dayOfWeek, tc.dayOfMonth, from); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestClampDay(t *testing.T) {
	if got := clampDay(2026, time.February, 31); got != 28 {
		t.Errorf("feb 2026 clamp = %d, want 28", got)
	}
	if got := clampDay(2028, time.February, 31); got != 29 {
		t.Errorf("feb 2028 clamp = %d, want 29 in a leap year", got)
	}
	if got := clampDay(2026, time.April, 31); got != 30 {
		t.Errorf("april clamp = %d, want 30", got)
	}
	if got := clampDay(2026, time.January, 15); got != 15 {
		t.Errorf("in-range day = %d, want unchanged", got)
	}
}
