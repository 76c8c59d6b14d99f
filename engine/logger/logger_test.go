package logger

import (
	"log/slog"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestHandler_Enabled(t *testing.T) {
	h := NewHandler(slog.LevelInfo, false)

	if h.Enabled(nil, slog.LevelDebug) {
		t.Error("Enabled(debug) = true with info handler")
	}
	if !h.Enabled(nil, slog.LevelWarn) {
		t.Error("Enabled(warn) = false with info handler")
	}
}

func TestGetLogType(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		attrs []slog.Attr
		want  LogType
	}{
		{name: "default is sys", level: slog.LevelInfo, want: TypeSystem},
		{
			name:  "db tag",
			level: slog.LevelInfo,
			attrs: []slog.Attr{slog.String("type", "db")},
			want:  TypeDB,
		},
		{
			name:  "sweep tag",
			level: slog.LevelInfo,
			attrs: []slog.Attr{slog.String("type", "sweep")},
			want:  TypeSweep,
		},
		{name: "error level overrides", level: slog.LevelError, want: TypeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := slog.NewRecord(time.Now(), tt.level, "msg", 0)
			r.AddAttrs(tt.attrs...)
			if got := getLogType(&r); got != tt.want {
				t.Errorf("getLogType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatSource(t *testing.T) {
	if got := formatSource(0); got != "" {
		t.Errorf("formatSource(0) = %q, want empty", got)
	}

	var pcs [1]uintptr
	runtime.Callers(1, pcs[:])
	got := formatSource(pcs[0])
	if !strings.HasPrefix(got, "logger_test.go:") {
		t.Errorf("formatSource() = %q, want logger_test.go:<line>", got)
	}
}
