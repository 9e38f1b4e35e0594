package agents

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// Custom agent layout under the agents directory:
// <name>/README.md holds the agent's prompt, <name>/skills.json its
// skill list.
const (
	agentReadme = "README.md"
	agentSkills = "skills.json"
)

var (
	// ErrAgentExists marks a Create over an existing agent.
	ErrAgentExists = errors.New("agent already exists")
	// ErrInvalidAgentName marks a name outside [a-z0-9_-].
	ErrInvalidAgentName = errors.New("invalid agent name")

	agentNameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

// Skill is one capability entry in an agent's skills.json.
type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CustomAgent is a user-defined agent loaded from disk.
type CustomAgent struct {
	Name   string  `json:"name"`
	Prompt string  `json:"prompt"`
	Skills []Skill `json:"skills"`
}

// CreateCustomAgent scaffolds a new agent directory with its README
// and an empty skill list.
func CreateCustomAgent(agentsDir, name, description string) (*CustomAgent, error) {
	if !agentNameRe.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAgentName, name)
	}

	dir := filepath.Join(agentsDir, name)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAgentExists, name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create agent dir: %w", err)
	}

	prompt := fmt.Sprintf("# %s\n\n%s\n", name, description)
	if err := os.WriteFile(filepath.Join(dir, agentReadme), []byte(prompt), 0o644); err != nil {
		return nil, err
	}
	if err := writeSkills(dir, []Skill{}); err != nil {
		return nil, err
	}
	return &CustomAgent{Name: name, Prompt: prompt, Skills: []Skill{}}, nil
}

// LoadCustomAgent reads an agent from disk. A missing directory is an
// ErrUnknownAgent.
func LoadCustomAgent(agentsDir, name string) (*CustomAgent, error) {
	dir := filepath.Join(agentsDir, name)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}

	agent := &CustomAgent{Name: name}
	if data, err := os.ReadFile(filepath.Join(dir, agentReadme)); err == nil {
		agent.Prompt = string(data)
	}
	if data, err := os.ReadFile(filepath.Join(dir, agentSkills)); err == nil {
		if err := json.Unmarshal(data, &agent.Skills); err != nil {
			return nil, fmt.Errorf("parse %s skills: %w", name, err)
		}
	}
	return agent, nil
}

// ListCustomAgents returns the names of all agents on disk, sorted.
func ListCustomAgents(agentsDir string) ([]string, error) {
	entries, err := os.ReadDir(agentsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// AddSkill appends a skill to an agent's skill list and persists it.
func AddSkill(agentsDir, name string, skill Skill) (*CustomAgent, error) {
	agent, err := LoadCustomAgent(agentsDir, name)
	if err != nil {
		return nil, err
	}
	if skill.Name == "" {
		return nil, errors.New("skill name required")
	}
	for _, existing := range agent.Skills {
		if existing.Name == skill.Name {
			return nil, fmt.Errorf("skill %q already present on %s", skill.Name, name)
		}
	}

	agent.Skills = append(agent.Skills, skill)
	if err := writeSkills(filepath.Join(agentsDir, name), agent.Skills); err != nil {
		return nil, err
	}
	return agent, nil
}

func writeSkills(dir string, skills []Skill) error {
	data, err := json.MarshalIndent(skills, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, agentSkills), data, 0o644)
}
