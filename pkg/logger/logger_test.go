package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var out bytes.Buffer
	Init(Options{Service: "inventory-service", Version: "1.2.3", Environment: "test", Output: &out})
	t.Cleanup(func() {
		Logger = zerolog.Nop()
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})
	return &out
}

func decode(t *testing.T, out *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(out.Bytes(), &entry); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
	return entry
}

func TestInit_BaseFields(t *testing.T) {
	out := capture(t)

	Info(context.Background()).Msg("hello")

	entry := decode(t, out)
	for key, want := range map[string]string{"service": "inventory-service", "version": "1.2.3", "environment": "test", "message": "hello"} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %s", key, entry[key], want)
		}
	}
}

func TestWith_FieldsFollowContext(t *testing.T) {
	out := capture(t)

	ctx := With(context.Background(), "product_id", "sku-1")
	ctx = With(ctx, "job_id", "job-9")
	ctx = With(ctx, "product_id", "sku-2")
	ctx = With(ctx, "reservation_id", "")

	Info(ctx).Msg("moved")

	entry := decode(t, out)
	if entry["product_id"] != "sku-2" {
		t.Errorf("expected overwritten product_id, got %v", entry["product_id"])
	}
	if entry["job_id"] != "job-9" {
		t.Errorf("expected job_id, got %v", entry["job_id"])
	}
	if _, ok := entry["reservation_id"]; ok {
		t.Error("empty values must not be attached")
	}
	if Field(ctx, "job_id") != "job-9" || Field(context.Background(), "job_id") != "" {
		t.Error("Field lookup mismatch")
	}
}

func TestCritical_FlagsOperator(t *testing.T) {
	out := capture(t)

	Critical(context.Background()).Msg("ledger diverged")

	entry := decode(t, out)
	if entry["level"] != "fatal" || entry["operator_attention"] != true {
		t.Errorf("unexpected critical entry: %v", entry)
	}
}

func TestSetLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{" WARN ", zerolog.WarnLevel, false},
		{"trace", zerolog.TraceLevel, false},
		{"", zerolog.InfoLevel, false},
		{"loud", zerolog.InfoLevel, true},
	}
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := SetLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SetLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got := zerolog.GlobalLevel(); got != tt.want {
				t.Errorf("SetLevel(%q) level = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
