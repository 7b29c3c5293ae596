package scheduler

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// TaskSpec is the portable form of a task used by export and import.
type TaskSpec struct {
	ID        string         `yaml:"id,omitempty"`
	Name      string         `yaml:"name"`
	Workflow  string         `yaml:"workflow"`
	Schedule  string         `yaml:"schedule"`
	Timeout   string         `yaml:"timeout,omitempty"`
	Enabled   *bool          `yaml:"enabled,omitempty"`
	Arguments map[string]any `yaml:"arguments,omitempty"`
}

type taskFile struct {
	Tasks []TaskSpec `yaml:"tasks"`
}

// MarshalTasks encodes tasks as a YAML document.
func MarshalTasks(tasks []*Task) ([]byte, error) {
	f := taskFile{Tasks: make([]TaskSpec, 0, len(tasks))}
	for _, t := range tasks {
		enabled := t.Enabled
		spec := TaskSpec{
			ID:        t.ID,
			Name:      t.Name,
			Workflow:  t.WorkflowID,
			Schedule:  t.Schedule,
			Enabled:   &enabled,
			Arguments: t.Arguments,
		}
		if t.Timeout > 0 {
			spec.Timeout = t.Timeout.String()
		}
		f.Tasks = append(f.Tasks, spec)
	}
	return yaml.Marshal(f)
}

// UnmarshalTasks decodes a YAML document written by MarshalTasks. Tasks
// are enabled unless the document says otherwise.
func UnmarshalTasks(data []byte) ([]*Task, error) {
	var f taskFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tasks: %w", err)
	}

	tasks := make([]*Task, 0, len(f.Tasks))
	for i, spec := range f.Tasks {
		if spec.Workflow == "" {
			return nil, fmt.Errorf("task %d: workflow is required", i+1)
		}
		if _, err := ParseSchedule(spec.Schedule); err != nil {
			return nil, fmt.Errorf("task %d: %w", i+1, err)
		}
		t := &Task{
			ID:         spec.ID,
			Name:       spec.Name,
			WorkflowID: spec.Workflow,
			Schedule:   spec.Schedule,
			Arguments:  spec.Arguments,
			Enabled:    spec.Enabled == nil || *spec.Enabled,
		}
		if spec.Timeout != "" {
			d, err := time.ParseDuration(spec.Timeout)
			if err != nil {
				return nil, fmt.Errorf("task %d: invalid timeout: %w", i+1, err)
			}
			t.Timeout = d
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
