package timeouts

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestConfigure_IgnoresZeroValues(t *testing.T) {
	defer Reset()

	Configure(Config{Short: 7 * time.Second})

	if Short() != 7*time.Second {
		t.Errorf("Short() = %v, want 7s", Short())
	}
	if Medium() != DefaultMedium {
		t.Errorf("Medium() = %v, want default %v", Medium(), DefaultMedium)
	}
}

func TestReset(t *testing.T) {
	Configure(Config{Ping: time.Minute, Long: time.Hour})
	Reset()

	if Ping() != DefaultPing || Long() != DefaultLong {
		t.Errorf("Reset did not restore defaults: ping=%v long=%v", Ping(), Long())
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	ctx, cancel := WithTimeout(context.Background(), time.Millisecond, zap.NewNop(), "test")
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context did not expire")
	}
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("ctx.Err() = %v, want DeadlineExceeded", ctx.Err())
	}
}

func TestDetached_IgnoresParentCancel(t *testing.T) {
	type key struct{}
	parent, cancelParent := context.WithCancel(context.WithValue(context.Background(), key{}, "v"))
	ctx, cancel := Detached(parent, time.Minute)
	defer cancel()

	cancelParent()
	if ctx.Err() != nil {
		t.Errorf("detached context canceled with parent: %v", ctx.Err())
	}
	if ctx.Value(key{}) != "v" {
		t.Error("detached context lost parent values")
	}
	if _, ok := ctx.Deadline(); !ok {
		t.Error("detached context should carry its own deadline")
	}
}
