// Package testutil provides testing utilities for PipelineScope.
package testutil

import (
	"context"
	"time"
)

// TestTimeout bounds contexts handed out by NewTestContext.
const TestTimeout = 30 * time.Second

// NewTestContext creates a test context that expires after TestTimeout.
func NewTestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), TestTimeout)
}
