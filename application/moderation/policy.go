package moderation

import (
	"context"
	"fmt"
	"sync"

	"github.com/VadimShubkin/ii/pkg/common"
)

// Decision is the verdict of a policy on one action
type Decision string

const (
	DecisionAllow  Decision = "allow"
	DecisionQueue  Decision = "queue"
	DecisionReject Decision = "reject"
)

// IsValid reports whether the decision is known
func (d Decision) IsValid() bool {
	return d == DecisionAllow || d == DecisionQueue || d == DecisionReject
}

// Policy decides what happens to an action attempted by the caller in ctx
type Policy interface {
	Decide(ctx context.Context, action Action) Decision
}

// PolicyConfig is the rule set of a RulePolicy
type PolicyConfig struct {
	Default      Decision
	TrustedRoles []string
	Rules        map[Action]Decision
}

// Validate checks every decision in the rule set
func (c PolicyConfig) Validate() error {
	if !c.Default.IsValid() {
		return fmt.Errorf("invalid default moderation decision %q", c.Default)
	}
	for action, d := range c.Rules {
		if !d.IsValid() {
			return fmt.Errorf("invalid moderation decision %q for %s", d, action)
		}
	}
	return nil
}

// RulePolicy lets trusted roles through and applies per-action rules to
// everyone else. Its rules can be swapped at runtime.
type RulePolicy struct {
	mu     sync.RWMutex
	config PolicyConfig
}

// NewRulePolicy creates a policy from a validated rule set
func NewRulePolicy(config PolicyConfig) (*RulePolicy, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &RulePolicy{config: clonePolicy(config)}, nil
}

// Decide implements Policy
func (p *RulePolicy) Decide(ctx context.Context, action Action) Decision {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if common.HasAnyRole(ctx, p.config.TrustedRoles...) {
		return DecisionAllow
	}
	if d, ok := p.config.Rules[action]; ok {
		return d
	}
	return p.config.Default
}

// Update replaces the rule set; an invalid set leaves the old one in place
func (p *RulePolicy) Update(config PolicyConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.config = clonePolicy(config)
	p.mu.Unlock()
	return nil
}

func clonePolicy(c PolicyConfig) PolicyConfig {
	out := PolicyConfig{
		Default:      c.Default,
		TrustedRoles: append([]string(nil), c.TrustedRoles...),
		Rules:        make(map[Action]Decision, len(c.Rules)),
	}
	for k, v := range c.Rules {
		out.Rules[k] = v
	}
	return out
}

// StaticPolicy returns the same decision for every action
type StaticPolicy Decision

// Decide implements Policy
func (p StaticPolicy) Decide(context.Context, Action) Decision {
	return Decision(p)
}
