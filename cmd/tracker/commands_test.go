package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	planID := uuid.New()
	milestoneID := uuid.New()

	cmd, err := parseCommand("start Linear Algebra")
	require.NoError(t, err)
	assert.Equal(t, "Linear Algebra", cmd.start.Subject)

	cmd, err = parseCommand("plan " + planID.String() + " Exam prep")
	require.NoError(t, err)
	require.NotNil(t, cmd.start.StudyPlanID)
	assert.Equal(t, planID, *cmd.start.StudyPlanID)
	assert.Equal(t, "Exam prep", cmd.start.PlanName)

	cmd, err = parseCommand("stop 8 finished chapter 3")
	require.NoError(t, err)
	assert.Equal(t, 8, cmd.stop.FocusScore)
	assert.Equal(t, "finished chapter 3", cmd.stop.Notes)

	cmd, err = parseCommand("stop felt good")
	require.NoError(t, err)
	assert.Equal(t, 0, cmd.stop.FocusScore)
	assert.Equal(t, "felt good", cmd.stop.Notes)

	cmd, err = parseCommand("link " + milestoneID.String() + " 35%")
	require.NoError(t, err)
	require.NotNil(t, cmd.milestone)
	assert.Equal(t, 35.0, cmd.milestone.Progress)

	cmd, err = parseCommand("  PAUSE ")
	require.NoError(t, err)
	assert.Equal(t, "pause", cmd.name)
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{
		"",
		"dance",
		"plan",
		"plan not-a-uuid",
		"stop 11",
		"link " + uuid.NewString(),
		"link " + uuid.NewString() + " 140",
	} {
		_, err := parseCommand(line)
		assert.Error(t, err, line)
	}
}
