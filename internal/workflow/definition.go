// Package workflow loads swarm workload definitions from YAML files: the
// agent pool to register and the tasks to run, with their dependencies.
package workflow

import (
	"fmt"
	"strings"

	"github.com/swarmroute/swarmroute/pkg/models"
)

// Definition is one workflow file: a named batch of tasks plus the agents
// meant to serve it.
type Definition struct {
	// Name identifies the workflow.
	Name string `yaml:"name"`
	// Description is free-form documentation.
	Description string `yaml:"description,omitempty"`
	// Agents lists specialists to register before the run.
	Agents []AgentDef `yaml:"agents,omitempty"`
	// Tasks lists the work to schedule.
	Tasks []TaskDef `yaml:"tasks"`
}

// AgentDef declares one specialist agent.
type AgentDef struct {
	// Name is the agent's unique name.
	Name string `yaml:"name"`
	// Specialty is the task type the agent is best at.
	Specialty string `yaml:"specialty"`
	// Capabilities are the agent's capability tags.
	Capabilities []string `yaml:"capabilities,omitempty"`
	// Tools are the agent's tool categories.
	Tools []string `yaml:"tools,omitempty"`
}

// TaskDef declares one task. A missing ID is derived from the title.
type TaskDef struct {
	// ID is the task's unique ID within the workflow.
	ID string `yaml:"id,omitempty"`
	// Title is the short task summary.
	Title string `yaml:"title"`
	// Description is the full task text.
	Description string `yaml:"description,omitempty"`
	// Type is an optional declared task type; classification fills the gap.
	Type string `yaml:"type,omitempty"`
	// Priority orders dispatch; lower runs first.
	Priority int `yaml:"priority,omitempty"`
	// DependsOn lists task IDs that must complete first.
	DependsOn []string `yaml:"depends_on,omitempty"`
	// MaxRetries overrides the swarm's default retry cap when positive.
	MaxRetries int `yaml:"max_retries,omitempty"`
	// EstimatedHours is the declared effort estimate.
	EstimatedHours float64 `yaml:"estimated_hours,omitempty"`
}

// Validate fills derived IDs and checks referential integrity. Dependency
// IDs must reference tasks in the same workflow; cross-file dependencies are
// not a thing.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow has no name")
	}
	if len(d.Tasks) == 0 {
		return fmt.Errorf("workflow %s has no tasks", d.Name)
	}

	ids := make(map[string]bool, len(d.Tasks))
	for i := range d.Tasks {
		t := &d.Tasks[i]
		if t.Title == "" {
			return fmt.Errorf("workflow %s: task %d has no title", d.Name, i)
		}
		if t.ID == "" {
			t.ID = Slug(t.Title)
		}
		if ids[t.ID] {
			return fmt.Errorf("workflow %s: duplicate task ID %s", d.Name, t.ID)
		}
		ids[t.ID] = true
	}

	for _, t := range d.Tasks {
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("workflow %s: task %s depends on unknown task %s", d.Name, t.ID, dep)
			}
		}
	}

	for i, a := range d.Agents {
		if a.Name == "" || a.Specialty == "" {
			return fmt.Errorf("workflow %s: agent %d needs a name and a specialty", d.Name, i)
		}
	}

	return nil
}

// BuildTasks converts the definition's task list to model tasks.
func (d *Definition) BuildTasks() []*models.Task {
	tasks := make([]*models.Task, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		tasks = append(tasks, &models.Task{
			ID:             t.ID,
			Title:          t.Title,
			Description:    t.Description,
			DeclaredType:   t.Type,
			Priority:       t.Priority,
			DependsOn:      append([]string(nil), t.DependsOn...),
			MaxRetries:     t.MaxRetries,
			EstimatedHours: t.EstimatedHours,
			Status:         models.TaskStatusPending,
		})
	}
	return tasks
}

// Slug derives a stable task ID from a title: lowercase, runs of
// non-alphanumerics collapsed to single dashes.
func Slug(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
