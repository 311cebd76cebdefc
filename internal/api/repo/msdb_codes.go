package repo

import (
	"fmt"
	"strconv"
	"strings"

	"jobdef/internal/api/models"
)

// SQL Server Agent step completion action codes
const (
	agentQuitWithSuccess = 1
	agentQuitWithFailure = 2
	agentGoToNextStep    = 3
	agentGoToStep        = 4
)

func agentActionCode(a models.CompletionAction) (code int, stepID int) {
	switch a.Action {
	case models.ActionQuitWithSuccess:
		return agentQuitWithSuccess, 0
	case models.ActionQuitWithFailure:
		return agentQuitWithFailure, 0
	case models.ActionGoToStep:
		return agentGoToStep, a.TargetID
	default:
		return agentGoToNextStep, 0
	}
}

func agentAction(code, stepID int) (models.CompletionAction, error) {
	switch code {
	case agentQuitWithSuccess:
		return models.QuitWithSuccess(), nil
	case agentQuitWithFailure:
		return models.QuitWithFailure(), nil
	case agentGoToNextStep:
		return models.GoToNextStep(), nil
	case agentGoToStep:
		return models.GoToStep(stepID), nil
	}
	return models.CompletionAction{}, fmt.Errorf("unknown step completion action %d", code)
}

// parseMajorVersion reads the major number of SERVERPROPERTY('ProductVersion'),
// e.g. 16 for "16.0.1000.6"
func parseMajorVersion(productVersion string) (int, error) {
	major, _, _ := strings.Cut(strings.TrimSpace(productVersion), ".")
	v, err := strconv.Atoi(major)
	if err != nil {
		return 0, fmt.Errorf("invalid product version %q", productVersion)
	}
	return v, nil
}

// agentSubsystem maps a step subsystem to the msdb subsystem name
func agentSubsystem(s models.Subsystem) string {
	switch s {
	case models.SubsystemCmdExec:
		return "CmdExec"
	case models.SubsystemPowerShell:
		return "PowerShell"
	default:
		return "TSQL"
	}
}
