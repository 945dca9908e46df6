// Package notify delivers user-facing operation outcomes. It is the CLI
// analog of the web client's toast layer.
package notify

import (
	"github.com/chattyhq/chatty-cli/pkg/logger"
)

// Notifier receives per-operation outcome messages. Implementations must be
// safe to call from any goroutine.
type Notifier interface {
	// Success reports a completed operation.
	Success(message string)
	// Error reports a failed operation. The message is already user-facing
	// (server-supplied validation text or a generic fallback).
	Error(message string)
}

// Console writes notifications through the process logger.
type Console struct{}

// NewConsole creates a console notifier.
func NewConsole() *Console {
	return &Console{}
}

func (*Console) Success(message string) {
	logger.Infof("✓ %s", message)
}

func (*Console) Error(message string) {
	logger.Errorf("✗ %s", message)
}
