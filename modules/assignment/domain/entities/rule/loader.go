package rule

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type fileSpec struct {
	Rules []ruleSpec `yaml:"rules" toml:"rules"`
}

type ruleSpec struct {
	Name       string      `yaml:"name" toml:"name"`
	Priority   int         `yaml:"priority" toml:"priority"`
	Active     *bool       `yaml:"active" toml:"active"`
	Target     targetSpec  `yaml:"target" toml:"target"`
	Conditions []Condition `yaml:"conditions" toml:"conditions"`
}

type targetSpec struct {
	UserID uint   `yaml:"user_id" toml:"user_id"`
	TeamID string `yaml:"team_id" toml:"team_id"`
}

// Parse decodes a YAML (.yaml, .yml) or TOML (.toml) rule file.
// Rules come back unsaved, validated, and bound to tenantID.
func Parse(tenantID uuid.UUID, filename string, data []byte) ([]*Rule, error) {
	var spec fileSpec
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("parse %s: %w", filename, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &spec)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", filename, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse %s: unknown keys %v", filename, undecoded)
		}
	default:
		return nil, fmt.Errorf("unsupported rule file extension %q (expected .yaml, .yml or .toml)", ext)
	}

	seen := make(map[string]struct{}, len(spec.Rules))
	rules := make([]*Rule, 0, len(spec.Rules))
	for i, rs := range spec.Rules {
		r, err := rs.toRule(tenantID)
		if err != nil {
			return nil, fmt.Errorf("rule #%d: %w", i+1, err)
		}
		key := strings.ToLower(r.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("rule #%d: duplicate name %q", i+1, r.Name)
		}
		seen[key] = struct{}{}
		rules = append(rules, r)
	}
	return rules, nil
}

func (rs ruleSpec) toRule(tenantID uuid.UUID) (*Rule, error) {
	var target Target
	switch {
	case rs.Target.UserID != 0 && rs.Target.TeamID != "":
		return nil, fmt.Errorf("target must name either user_id or team_id, not both")
	case rs.Target.UserID != 0:
		target = UserTarget(rs.Target.UserID)
	case rs.Target.TeamID != "":
		teamID, err := uuid.Parse(rs.Target.TeamID)
		if err != nil {
			return nil, fmt.Errorf("invalid team_id %q: %w", rs.Target.TeamID, err)
		}
		target = TeamTarget(teamID)
	default:
		return nil, fmt.Errorf("target is required")
	}

	active := true
	if rs.Active != nil {
		active = *rs.Active
	}
	r := &Rule{
		TenantID:   tenantID,
		Name:       strings.TrimSpace(rs.Name),
		Priority:   rs.Priority,
		Conditions: rs.Conditions,
		Target:     target,
		IsActive:   active,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
