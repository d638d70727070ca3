package ctxutil

import (
	"context"
	"testing"
	"time"
)

func TestUserIDContext(t *testing.T) {
	t.Parallel()

	t.Run("empty context", func(t *testing.T) {
		t.Parallel()
		if userID := GetUserID(context.Background()); userID != "" {
			t.Errorf("Expected empty string, got %s", userID)
		}
	})

	t.Run("with user ID", func(t *testing.T) {
		t.Parallel()
		ctx := WithUserID(context.Background(), "line:U1234567890")
		if got := GetUserID(ctx); got != "line:U1234567890" {
			t.Errorf("Expected userID line:U1234567890, got %s", got)
		}
		if got := MustGetUserID(ctx); got != "line:U1234567890" {
			t.Errorf("MustGetUserID() = %s", got)
		}
	})
}

func TestMustGetUserID_Panic(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected MustGetUserID to panic on empty context")
		}
	}()

	MustGetUserID(context.Background())
}

func TestRequestIDContext(t *testing.T) {
	t.Parallel()

	if _, ok := GetRequestID(context.Background()); ok {
		t.Error("Expected no request ID on empty context")
	}
	if _, ok := GetRequestID(WithRequestID(context.Background(), "")); ok {
		t.Error("Expected empty request ID to be reported as missing")
	}
	id, ok := GetRequestID(WithRequestID(context.Background(), "req-1"))
	if !ok || id != "req-1" {
		t.Errorf("GetRequestID() = %q, %v", id, ok)
	}
}

func TestPreserveTracing(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	parent = WithUserID(parent, "u1")
	parent = WithRequestID(parent, "r1")
	parent = WithImportID(parent, "i1")
	parent = WithChannel(parent, ChannelLINE)
	cancel()

	ctx := PreserveTracing(parent)
	if ctx.Err() != nil {
		t.Fatalf("preserved context should not be canceled: %v", ctx.Err())
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		t.Error("preserved context should have no deadline")
	}
	if GetUserID(ctx) != "u1" || GetImportID(ctx) != "i1" || GetChannel(ctx) != ChannelLINE {
		t.Errorf("values lost: user=%q import=%q channel=%q", GetUserID(ctx), GetImportID(ctx), GetChannel(ctx))
	}
	if id, _ := GetRequestID(ctx); id != "r1" {
		t.Errorf("request id = %q", id)
	}
}
