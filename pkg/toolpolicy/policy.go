// Package toolpolicy gates which agent tools are offered for each intent.
package toolpolicy

import (
	"fmt"
	"slices"

	"valorbot/pkg/intent"
)

// Tool names known to the policy table.
const (
	ToolCurrentTime   = "get_current_time"
	ToolSystemHealth  = "system_health"
	ToolFetchLink     = "fetch_link"
	ToolSearchWeb     = "search_web"
	ToolSearchHistory = "search_chat_history"
	ToolQueryProjects = "query_projects"
	ToolGenerateImage = "generate_image"
)

const (
	scorePriority   = 90
	scoreAllowed    = 70
	scoreRestricted = 10
	scoreNeutral    = 50
)

// Policy is the static tool configuration of one intent. MaxCount 0 means no cap.
type Policy struct {
	Allowed    []string `json:"allowed"`
	Priority   []string `json:"priority"`
	Restricted []string `json:"restricted"`
	MaxCount   int      `json:"max_count,omitempty"`
}

// Resolved is a Policy after the cap has been applied to Allowed.
type Resolved struct {
	Intent     intent.Intent `json:"intent"`
	Allowed    []string      `json:"allowed"`
	Priority   []string      `json:"priority"`
	Restricted []string      `json:"restricted"`
	MaxCount   int           `json:"max_count,omitempty"`
}

var policies = map[intent.Intent]Policy{
	intent.CasualChat: {
		Allowed:    []string{ToolSearchHistory, ToolCurrentTime, ToolSearchWeb, ToolFetchLink},
		Priority:   []string{ToolSearchHistory},
		Restricted: []string{ToolGenerateImage, ToolQueryProjects},
		MaxCount:   3,
	},
	intent.QuestionAnswer: {
		Allowed:    []string{ToolSearchWeb, ToolFetchLink, ToolSearchHistory, ToolCurrentTime},
		Priority:   []string{ToolSearchWeb},
		Restricted: []string{ToolGenerateImage},
		MaxCount:   4,
	},
	intent.ProjectQuery: {
		Allowed:    []string{ToolQueryProjects, ToolSearchHistory, ToolCurrentTime},
		Priority:   []string{ToolQueryProjects},
		Restricted: []string{ToolGenerateImage},
		MaxCount:   3,
	},
	intent.DevelopmentTask: {
		Allowed:    []string{ToolSearchWeb, ToolFetchLink, ToolQueryProjects, ToolSearchHistory, ToolCurrentTime},
		Priority:   []string{ToolSearchWeb, ToolFetchLink},
		Restricted: []string{ToolGenerateImage},
		MaxCount:   4,
	},
	intent.ImageGeneration: {
		Allowed:    []string{ToolGenerateImage, ToolSearchHistory},
		Priority:   []string{ToolGenerateImage},
		Restricted: []string{ToolSearchWeb, ToolFetchLink, ToolQueryProjects},
		MaxCount:   2,
	},
	intent.ImageAnalysis: {
		Allowed:    []string{ToolSearchHistory, ToolSearchWeb},
		Restricted: []string{ToolGenerateImage, ToolQueryProjects},
		MaxCount:   2,
	},
	intent.WebSearch: {
		Allowed:    []string{ToolSearchWeb, ToolFetchLink, ToolCurrentTime},
		Priority:   []string{ToolSearchWeb},
		Restricted: []string{ToolGenerateImage, ToolQueryProjects},
		MaxCount:   3,
	},
	intent.LinkAnalysis: {
		Allowed:    []string{ToolFetchLink, ToolSearchWeb},
		Priority:   []string{ToolFetchLink},
		Restricted: []string{ToolGenerateImage},
		MaxCount:   2,
	},
	intent.SystemHealth: {
		Allowed:    []string{ToolSystemHealth, ToolCurrentTime},
		Priority:   []string{ToolSystemHealth},
		Restricted: []string{ToolGenerateImage, ToolSearchWeb, ToolFetchLink},
		MaxCount:   2,
	},
	intent.Unclear: {
		Allowed:    []string{ToolSearchHistory, ToolSearchWeb, ToolCurrentTime},
		Priority:   []string{ToolSearchHistory},
		Restricted: []string{ToolGenerateImage},
		MaxCount:   3,
	},
}

// Table holds the per-intent policies. The zero value is unusable; use Default or New.
type Table struct {
	policies map[intent.Intent]Policy
}

// Default returns the built-in policy table.
func Default() *Table {
	return &Table{policies: policies}
}

// New builds a table from custom policies. It must contain an unclear entry.
func New(custom map[intent.Intent]Policy) (*Table, error) {
	if _, ok := custom[intent.Unclear]; !ok {
		return nil, fmt.Errorf("policy table has no %q entry", intent.Unclear)
	}

	copied := make(map[intent.Intent]Policy, len(custom))
	for k, p := range custom {
		copied[k] = Policy{
			Allowed:    slices.Clone(p.Allowed),
			Priority:   slices.Clone(p.Priority),
			Restricted: slices.Clone(p.Restricted),
			MaxCount:   p.MaxCount,
		}
	}

	t := &Table{policies: copied}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Lookup returns the policy for an intent, falling back to unclear.
func (t *Table) Lookup(i intent.Intent) Policy {
	if p, ok := t.policies[i]; ok {
		return p
	}
	return t.policies[intent.Unclear]
}

// Resolve applies the intent's cap. Priority members are kept first.
func (t *Table) Resolve(c intent.Classification) Resolved {
	p := t.Lookup(c.Intent)

	return Resolved{
		Intent:     c.Intent,
		Allowed:    truncate(p.Allowed, p.Priority, p.MaxCount),
		Priority:   slices.Clone(p.Priority),
		Restricted: slices.Clone(p.Restricted),
		MaxCount:   p.MaxCount,
	}
}

// ShouldRestrict reports whether the tool is denied for the intent. Intents
// without their own entry restrict nothing.
func (t *Table) ShouldRestrict(tool string, c intent.Classification) bool {
	p, ok := t.policies[c.Intent]
	if !ok {
		return false
	}
	return slices.Contains(p.Restricted, tool)
}

// PriorityScore ranks a tool for the intent.
func (t *Table) PriorityScore(tool string, c intent.Classification) int {
	p := t.Lookup(c.Intent)

	switch {
	case slices.Contains(p.Priority, tool):
		return scorePriority
	case slices.Contains(p.Allowed, tool):
		return scoreAllowed
	case slices.Contains(p.Restricted, tool):
		return scoreRestricted
	default:
		return scoreNeutral
	}
}

// Filter narrows the tools an agent has registered to the resolved allow-list,
// preserving the resolved order.
func (t *Table) Filter(available []string, c intent.Classification) []string {
	resolved := t.Resolve(c)

	out := make([]string, 0, len(resolved.Allowed))
	for _, name := range resolved.Allowed {
		if !slices.Contains(available, name) || slices.Contains(resolved.Restricted, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Validate checks that every priority tool is allowed and no restricted tool
// is also a priority tool.
func (t *Table) Validate() error {
	for _, i := range intent.Intents() {
		p, ok := t.policies[i]
		if !ok {
			continue
		}
		for _, name := range p.Priority {
			if !slices.Contains(p.Allowed, name) {
				return fmt.Errorf("intent %s: priority tool %q is not allowed", i, name)
			}
			if slices.Contains(p.Restricted, name) {
				return fmt.Errorf("intent %s: tool %q is both priority and restricted", i, name)
			}
		}
		if p.MaxCount < 0 {
			return fmt.Errorf("intent %s: negative max count %d", i, p.MaxCount)
		}
	}
	return nil
}

func truncate(allowed []string, priority []string, limit int) []string {
	if limit <= 0 || len(allowed) <= limit {
		return slices.Clone(allowed)
	}

	out := make([]string, 0, limit)
	for _, name := range priority {
		if len(out) == limit {
			return out
		}
		if slices.Contains(allowed, name) {
			out = append(out, name)
		}
	}
	for _, name := range allowed {
		if len(out) == limit {
			break
		}
		if !slices.Contains(priority, name) {
			out = append(out, name)
		}
	}
	return out
}
