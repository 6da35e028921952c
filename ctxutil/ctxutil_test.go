// Copyright (c) 2025 BVK Chaitanya

package ctxutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCloseGroup(t *testing.T) {
	var cg CloseGroup

	doneCh := make(chan struct{})
	cg.Go(func(ctx context.Context) {
		<-ctx.Done()
		close(doneCh)
	})

	cg.Close()

	select {
	case <-doneCh:
	case <-time.After(time.Second):
		t.Fatalf("goroutine did not stop after Close")
	}
}

func TestRetryTimeout(t *testing.T) {
	fail := errors.New("always fails")

	var count int
	f := func() error {
		count++
		return fail
	}

	err := RetryTimeout(context.Background(), time.Millisecond, 10*time.Millisecond, f)
	if !errors.Is(err, fail) {
		t.Fatalf("RetryTimeout: want %v, got %v", fail, err)
	}
	if count < 2 {
		t.Fatalf("RetryTimeout: function was not retried (count=%d)", count)
	}
}
