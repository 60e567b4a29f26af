package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConflictErrorDetection(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		conflict   bool
		constraint bool
	}{
		{"nil", nil, false, false},
		{"plain", errors.New("boom"), false, false},
		{"busy text", errors.New("database busy (SQLITE_BUSY)"), true, false},
		{"locked text", fmt.Errorf("exec: %w", errors.New("database is locked")), true, false},
		{"constraint text", errors.New("UNIQUE constraint failed: orders.order_id"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.conflict, IsSQLiteConflictError(tt.err))
			assert.Equal(t, tt.constraint, IsSQLiteConstraintError(tt.err))
		})
	}
}
