package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidStatus(t *testing.T) {
	for _, s := range []BatchStatus{StatusPending, StatusSubmitting, StatusRunning, StatusCompleted, StatusFailed} {
		require.True(t, ValidStatus(s))
	}
	require.False(t, ValidStatus("queued"))
	require.False(t, ValidStatus(""))
}

func TestBatchLockActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	require.True(t, Batch{Status: StatusSubmitting, SubmissionLockedUntil: &future}.LockActive(now))
	require.False(t, Batch{Status: StatusSubmitting, SubmissionLockedUntil: &past}.LockActive(now))
	require.False(t, Batch{Status: StatusSubmitting}.LockActive(now))
	// The lease only means anything while the batch is mid-submission.
	require.False(t, Batch{Status: StatusRunning, SubmissionLockedUntil: &future}.LockActive(now))
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("status", `unknown status "queued"`)
	require.True(t, IsValidation(err))
	require.Contains(t, err.Error(), "invalid status")

	require.False(t, IsValidation(errors.New("plain")))
	require.False(t, IsValidation(nil))
}

func TestRollbackErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("counter write failed")
	rb := &RollbackError{Op: "create file record", Cause: cause, RollbackCause: errors.New("delete failed")}
	require.ErrorIs(t, rb, cause)
	require.Contains(t, rb.Error(), "rollback failed")
}
