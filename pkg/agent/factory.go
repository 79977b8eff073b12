package agent

import (
	"fmt"

	"github.com/taskhive-ai/taskhive/pkg/config"
	"github.com/taskhive-ai/taskhive/pkg/models"
)

// New builds an agent whose reasoner matches the profile's kind.
func New(name string, profile *config.AgentProfileConfig, deps Deps) (*BaseAgent, error) {
	var reasoner Reasoner
	switch models.AgentKind(profile.Kind) {
	case models.AgentKindReactive:
		reasoner = NewReactive(DefaultRules(profile.Capabilities)...)
	case models.AgentKindCognitive:
		reasoner = NewCognitive()
	case models.AgentKindHybrid:
		reasoner = NewHybrid(profile)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgentKind, profile.Kind)
	}
	return NewBaseAgent(name, profile, reasoner, deps), nil
}
