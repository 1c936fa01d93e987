package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{in: "", want: zap.InfoLevel},
		{in: "debug", want: zap.DebugLevel},
		{in: " INFO ", want: zap.InfoLevel},
		{in: "warning", want: zap.WarnLevel},
		{in: "error", want: zap.ErrorLevel},
		{in: "trace", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}

func TestNew(t *testing.T) {
	l, err := New("warn")
	if err != nil {
		t.Fatal(err)
	}
	if l.Core().Enabled(zap.InfoLevel) {
		t.Fatal("info enabled at warn level")
	}
	if !l.Core().Enabled(zap.ErrorLevel) {
		t.Fatal("error disabled at warn level")
	}

	if _, err := New("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestConnLevel(t *testing.T) {
	if ConnLevel(false) != zap.DebugLevel || ConnLevel(true) != zap.InfoLevel {
		t.Fatal("unexpected per-connection levels")
	}
}
