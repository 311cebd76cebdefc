// Package jobfile reads job definitions written as YAML and applies them to an
// edit session. A document describes the whole job: steps not listed are
// removed, schedules and alerts not listed are detached.
package jobfile

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"os"
	"strings"

	"jobdef/internal/api/models"
	"jobdef/pkg"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Document is a job definition file
type Document struct {
	Job       Header     `yaml:"job"`
	Steps     []Step     `yaml:"steps" validate:"dive"`
	Schedules []Schedule `yaml:"schedules" validate:"dive"`
	Alerts    []string   `yaml:"alerts" validate:"dive,required"`
}

type Header struct {
	// ID selects an existing job; without it the file creates a new one
	ID          string `yaml:"id" validate:"omitempty,uuid"`
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Owner       string `yaml:"owner"`
}

// Step actions are "next", "success", "failure" or "step:<name>"
type Step struct {
	Name          string `yaml:"name" validate:"required"`
	Subsystem     string `yaml:"subsystem" validate:"required,oneof=TSQL CmdExec PowerShell"`
	Database      string `yaml:"database"`
	Command       string `yaml:"command"`
	OnSuccess     string `yaml:"onSuccess"`
	OnFailure     string `yaml:"onFailure"`
	RetryAttempts int    `yaml:"retryAttempts" validate:"min=0"`
	RetryInterval int    `yaml:"retryInterval" validate:"min=0"`
}

// Schedule either names an existing schedule by id or describes one owned by the job
type Schedule struct {
	ID        int    `yaml:"id" validate:"min=0"`
	Name      string `yaml:"name" validate:"required_without=ID"`
	Frequency string `yaml:"frequency" validate:"required_without=ID,omitempty,oneof=once daily weekly monthly monthlyRelative agentStart idle"`
	Interval  int    `yaml:"interval" validate:"min=0"`
	StartDate int    `yaml:"startDate" validate:"min=0"`
	StartTime int    `yaml:"startTime" validate:"min=0"`
	Enabled   *bool  `yaml:"enabled"`
}

func (s Step) successAction() string { return cmp.Or(s.OnSuccess, "next") }
func (s Step) failureAction() string { return cmp.Or(s.OnFailure, "failure") }

var frequencies = map[string]models.FrequencyType{
	"once":            models.FrequencyOnce,
	"daily":           models.FrequencyDaily,
	"weekly":          models.FrequencyWeekly,
	"monthly":         models.FrequencyMonthly,
	"monthlyRelative": models.FrequencyMonthlyRelative,
	"agentStart":      models.FrequencyAgentStart,
	"idle":            models.FrequencyIdle,
}

// Load reads and checks the document at path
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a document, rejecting unknown keys, and checks it
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode job file: %w", err)
	}
	if err := pkg.Validate(&doc); err != nil {
		return nil, fmt.Errorf("invalid job file: %w", err)
	}
	if err := doc.check(); err != nil {
		return nil, fmt.Errorf("invalid job file: %w", err)
	}
	return &doc, nil
}

// Context returns the session context the document needs
func (d *Document) Context() models.JobContext {
	if id, err := uuid.Parse(d.Job.ID); err == nil {
		return models.JobContext{JobID: id, Mode: models.JobModeEdit}
	}
	return models.JobContext{Mode: models.JobModeCreate}
}

func (d *Document) check() error {
	names := make(map[string]struct{}, len(d.Steps))
	for _, s := range d.Steps {
		key := strings.ToLower(s.Name)
		if _, dup := names[key]; dup {
			return fmt.Errorf("step %q is defined twice", s.Name)
		}
		names[key] = struct{}{}
	}
	for _, s := range d.Steps {
		for _, a := range []string{s.successAction(), s.failureAction()} {
			target, ok := strings.CutPrefix(a, "step:")
			if !ok {
				if _, err := parseAction(a, nil); err != nil {
					return fmt.Errorf("step %q: %w", s.Name, err)
				}
				continue
			}
			if _, found := names[strings.ToLower(target)]; !found {
				return fmt.Errorf("step %q: unknown target step %q", s.Name, target)
			}
		}
	}
	return nil
}

var errUnknownAction = errors.New("unknown step action")

// parseAction turns an action string into a completion action. ids maps lower
// case step names to their step id.
func parseAction(a string, ids map[string]int) (models.CompletionAction, error) {
	switch a {
	case "next":
		return models.GoToNextStep(), nil
	case "success":
		return models.QuitWithSuccess(), nil
	case "failure":
		return models.QuitWithFailure(), nil
	}
	if target, ok := strings.CutPrefix(a, "step:"); ok {
		if id, found := ids[strings.ToLower(target)]; found {
			return models.GoToStep(id), nil
		}
	}
	return models.CompletionAction{}, fmt.Errorf("%w %q", errUnknownAction, a)
}
