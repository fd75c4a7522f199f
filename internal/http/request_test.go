package http

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"kakeibo/internal/core"
)

func jsonID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestFlexInt(t *testing.T) {
	tests := []struct {
		in    string
		want  int64
		valid bool
		set   bool
	}{
		{`980`, 980, true, true},
		{`"980"`, 980, true, true},
		{`" 42 "`, 42, true, true},
		{`1e3`, 1000, true, true},
		{`3.0`, 3, true, true},
		{`-5`, -5, true, true},
		{`1.5`, 0, false, true},
		{`"abc"`, 0, false, true},
		{`1e300`, 0, false, true},
		{`""`, 0, false, false},
		{`null`, 0, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got struct {
				N flexInt `json:"n"`
			}
			if err := json.Unmarshal([]byte(`{"n":`+tt.in+`}`), &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			want := flexInt{Value: tt.want, Valid: tt.valid, Set: tt.set}
			if got.N != want {
				t.Errorf("got %+v, want %+v", got.N, want)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		msg  string
	}{
		{"12", 12, ""},
		{" 7 ", 7, ""},
		{"", 0, core.MsgIDRequired},
		{"abc", 0, core.MsgInvalidID},
		{"0", 0, core.MsgInvalidID},
		{"-1", 0, core.MsgInvalidID},
	}
	for _, tt := range tests {
		got, err := parseID(tt.in)
		if tt.msg == "" {
			if err != nil || got != tt.want {
				t.Errorf("parseID(%q) = %d, %v", tt.in, got, err)
			}
			continue
		}
		var ve *core.ValidationError
		if !errors.As(err, &ve) || ve.Message != tt.msg {
			t.Errorf("parseID(%q) err = %v, want %q", tt.in, err, tt.msg)
		}
	}
}

func TestParseWeek(t *testing.T) {
	tests := map[string]int{
		"":    0,
		"all": 0,
		"1":   1,
		"5":   5,
		"6":   0,
		"0":   0,
		"x":   0,
	}
	for in, want := range tests {
		if got := parseWeek(in); got != want {
			t.Errorf("parseWeek(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseLimit(t *testing.T) {
	if n, err := parseLimit(""); n != 0 || err != nil {
		t.Errorf("empty limit = %d, %v", n, err)
	}
	if n, err := parseLimit("20"); n != 20 || err != nil {
		t.Errorf("limit 20 = %d, %v", n, err)
	}
	if _, err := parseLimit("0"); err == nil {
		t.Error("limit 0 should be rejected")
	}
}

func TestParseDate(t *testing.T) {
	now := time.Date(2025, 10, 16, 12, 0, 0, 0, time.UTC)
	got, err := parseDate("", time.UTC, now)
	if err != nil || !got.Equal(now) {
		t.Errorf("empty date = %v, %v", got, err)
	}
	got, err = parseDate("2025-10-04", time.UTC, now)
	if err != nil || got.Day() != 4 {
		t.Errorf("ISO date = %v, %v", got, err)
	}
	if _, err := parseDate("4 Oct", time.UTC, now); err == nil {
		t.Error("expected error for free-form date")
	}
}
