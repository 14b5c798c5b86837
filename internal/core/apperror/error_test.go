package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicates_SeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("close session: %w", NewSessionClosed("s1"))

	assert.True(t, IsSessionClosed(err))
	assert.False(t, IsIncompleteCount(err))
	assert.Equal(t, http.StatusConflict, GetHTTPStatus(err))
}

func TestNewIncompleteCount_Details(t *testing.T) {
	err := NewIncompleteCount([]string{"p3"})

	assert.Equal(t, CodeIncompleteCount, err.Code)
	assert.Equal(t, []string{"p3"}, err.Details["missing_product_ids"])
	assert.Equal(t, 1, err.Details["missing_count"])
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus)
}

func TestNewLedgerWriteFailure_KeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewLedgerWriteFailure(2, 5, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 2, err.Details["posted"])
	assert.Equal(t, 5, err.Details["total"])
	assert.True(t, IsLedgerWriteFailure(err))
}

func TestGetHTTPStatus_UnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("boom")))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"ledger write failure", NewLedgerWriteFailure(1, 3, errors.New("down")), true},
		{"incomplete count", NewIncompleteCount([]string{"p1"}), true},
		{"close in progress", NewCloseInProgress("s1"), true},
		{"internal", NewInternal(errors.New("boom")), true},
		{"plain error", errors.New("boom"), true},
		{"session closed", NewSessionClosed("s1"), false},
		{"invalid quantity", NewInvalidQuantity("negative", -1), false},
		{"permission denied", NewPermissionDenied("MANAGE_INVENTORY", "st"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
