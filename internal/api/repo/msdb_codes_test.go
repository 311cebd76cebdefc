package repo

import (
	"testing"

	"jobdef/internal/api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentActionCodes(t *testing.T) {
	tests := []struct {
		action models.CompletionAction
		code   int
		stepID int
	}{
		{models.QuitWithSuccess(), 1, 0},
		{models.QuitWithFailure(), 2, 0},
		{models.GoToNextStep(), 3, 0},
		{models.GoToStep(4), 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.action.String(), func(t *testing.T) {
			code, stepID := agentActionCode(tt.action)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.stepID, stepID)

			back, err := agentAction(code, stepID)
			require.NoError(t, err)
			assert.Equal(t, tt.action, back)
		})
	}

	_, err := agentAction(9, 0)
	assert.Error(t, err)
}

func TestParseMajorVersion(t *testing.T) {
	v, err := parseMajorVersion("16.0.1000.6")
	require.NoError(t, err)
	assert.Equal(t, 16, v)

	v, err = parseMajorVersion(" 8.00.2039 ")
	require.NoError(t, err)
	assert.Equal(t, 8, v)

	_, err = parseMajorVersion("unknown")
	assert.Error(t, err)
}

func TestAgentSubsystem(t *testing.T) {
	assert.Equal(t, "TSQL", agentSubsystem(models.SubsystemTransactSQL))
	assert.Equal(t, "CmdExec", agentSubsystem(models.SubsystemCmdExec))
	assert.Equal(t, "PowerShell", agentSubsystem(models.SubsystemPowerShell))
}
