package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"minutes/internal/services"
)

func TestFailureIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Fail(services.KindExternalCallRejected, "transcribe", "whisper exited", base)
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcribe", "whisper exited", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestKindOfUsesOutermostFailure(t *testing.T) {
	inner := services.Fail(services.KindExternalCallTransient, "", "http 503", nil)
	outer := services.Fail(services.KindExternalCallExhausted, "", "failed after 3 attempts", inner)
	wrapped := fmt.Errorf("fuse: %w", outer)

	if kind := services.KindOf(wrapped); kind != services.KindExternalCallExhausted {
		t.Fatalf("expected exhausted kind, got %q", kind)
	}
	if !services.Is(wrapped, services.KindExternalCallExhausted) {
		t.Fatal("expected Is to match exhausted kind")
	}
	if services.KindOf(errors.New("plain")) != "" {
		t.Fatal("expected plain errors to be unclassified")
	}
}

func TestAttributeFillsStage(t *testing.T) {
	original := services.Fail(services.KindResponseSchemaInvalid, "", "decode payload", nil)
	attributed := services.Attribute(original, "analyze", services.KindExternalCallTransient)
	if attributed.Stage != "analyze" {
		t.Fatalf("expected stage to be filled, got %q", attributed.Stage)
	}
	if original.Stage != "" {
		t.Fatal("expected original failure to remain untouched")
	}
	if attributed.Kind != services.KindResponseSchemaInvalid {
		t.Fatalf("unexpected kind %q", attributed.Kind)
	}

	canceled := services.Attribute(context.Canceled, "fuse", services.KindExternalCallTransient)
	if canceled.Kind != services.KindCanceled {
		t.Fatalf("expected canceled kind, got %q", canceled.Kind)
	}

	raw := services.Attribute(errors.New("socket closed"), "fuse", "")
	if raw.Kind != services.KindExternalCallTransient {
		t.Fatalf("expected transient fallback, got %q", raw.Kind)
	}
}

func TestFailureMarshalJSON(t *testing.T) {
	failure := services.Fail(services.KindResourceNotFound, "transcribe", "video not found", nil)
	data, err := json.Marshal(failure)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["kind"] != "ResourceNotFound" || decoded["message"] != "video not found" {
		t.Fatalf("unexpected payload %s", data)
	}
}

func TestRetryableKinds(t *testing.T) {
	if !services.KindExternalCallTransient.Retryable() {
		t.Fatal("transient failures should be retryable")
	}
	for _, kind := range []services.Kind{
		services.KindExternalCallBlocked,
		services.KindResponseSchemaInvalid,
		services.KindExternalCallExhausted,
		services.KindResourceNotFound,
	} {
		if kind.Retryable() {
			t.Fatalf("%s should not be retryable", kind)
		}
	}
}
