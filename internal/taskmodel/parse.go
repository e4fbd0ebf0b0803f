package taskmodel

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// rawModel mirrors the wire shape of a task-file document (JSON or YAML).
// The struct tags carry the on-disk key names of the declarative format
// (snake_case, e.g. only_auto); the Go field names follow Go conventions.
type rawModel struct {
	Name          string     `json:"name" yaml:"name"`
	Description   string     `json:"description" yaml:"description"`
	Prerequisites []string   `json:"prerequisites" yaml:"prerequisites"`
	OnlyAuto      bool       `json:"only_auto" yaml:"only_auto"`
	Subtasks      []rawModel `json:"subtasks" yaml:"subtasks"`
}

func (r rawModel) toModel() *Model {
	m := &Model{
		Name:          r.Name,
		Description:   r.Description,
		Prerequisites: r.Prerequisites,
		OnlyAuto:      r.OnlyAuto,
	}
	for _, child := range r.Subtasks {
		m.Subtasks = append(m.Subtasks, child.toModel())
	}
	return m
}

// ParseJSON reads a task-file document in JSON form, rejecting unknown keys,
// and validates the resulting tree before returning it.
func ParseJSON(data []byte) (*Model, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var raw rawModel
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing task model JSON: %w", err)
	}

	m := raw.toModel()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseYAML reads a task-file document in YAML form, rejecting unknown
// keys, and validates the resulting tree before returning it.
func ParseYAML(data []byte) (*Model, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw rawModel
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing task model YAML: %w", err)
	}

	m := raw.toModel()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
