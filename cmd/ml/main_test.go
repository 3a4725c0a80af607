package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionline/internal/domain"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(domain.ValidationError{Field: "date", Reason: "bad"}))
	assert.Equal(t, 2, exitCode(domain.InvalidTransitionError{From: domain.StatusNew, To: domain.StatusCompleted}))
	assert.Equal(t, 3, exitCode(fmt.Errorf("wrapped: %w", domain.NotFoundError{Entity: "task", ID: "x"})))
	assert.Equal(t, 4, exitCode(domain.ConflictError{Reason: "moved"}))
	assert.Equal(t, 1, exitCode(errors.New("disk full")))
}

func TestParseID(t *testing.T) {
	id, err := parseID("mission_type_id", "42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, in := range []string{"", "0", "-3", "abc"} {
		_, err := parseID("mission_type_id", in)
		var ve domain.ValidationError
		require.ErrorAs(t, err, &ve, in)
		assert.Equal(t, "mission_type_id", ve.Field)
	}
}

func TestProgress(t *testing.T) {
	tasks := []domain.MissionTask{
		{Status: domain.StatusCompleted},
		{Status: domain.StatusInProgress},
		{Status: domain.StatusNew},
	}
	assert.Equal(t, "1/3", progress(tasks))
	assert.Equal(t, "0/0", progress(nil))
}
