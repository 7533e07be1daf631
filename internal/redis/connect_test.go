package redis

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConnect_UnreachableServer(t *testing.T) {
	logger := zerolog.Nop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := Connect(ctx, "127.0.0.1:1", "", 1, &logger)
	if err == nil {
		t.Fatal("Expected connection error for unreachable server")
	}
	if client != nil {
		t.Error("Expected nil client on failure")
	}
}

func TestConnect_StopsOnCancel(t *testing.T) {
	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if _, err := Connect(ctx, "127.0.0.1:1", "", 5, &logger); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Expected Connect to stop waiting once the context is cancelled")
	}
}
