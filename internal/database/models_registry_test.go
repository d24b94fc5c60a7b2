package database

import (
	"testing"

	modelspkg "helpmatch/internal/models"

	"github.com/stretchr/testify/require"
)

func TestPersistentModels_IncludesLifecycleTables(t *testing.T) {
	var haveRequest, haveRating bool
	for _, model := range PersistentModels() {
		switch model.(type) {
		case *modelspkg.Request:
			haveRequest = true
		case *modelspkg.Rating:
			haveRating = true
		}
	}
	require.True(t, haveRequest, "PersistentModels should include Request")
	require.True(t, haveRating, "PersistentModels should include Rating")
}
