package mcp

import (
	"context"
	"fmt"

	"github.com/HyphaGroup/kepoki/internal/definition"
)

type sayHelloParams struct{}

type listAgentsParams struct{}

type describeAgentParams struct {
	Name string `json:"name" jsonschema:"name of the agent to describe"`
}

// AgentList is the list_agents result
type AgentList struct {
	Agents []definition.Summary `json:"agents"`
}

func (s *Server) registerTools() error {
	if err := Register(s.registry, ToolDef{
		Name:        "say_hello",
		Description: "Says hello to the world",
	}, s.handleSayHello); err != nil {
		return err
	}
	if err := Register(s.registry, ToolDef{
		Name:        "list_agents",
		Description: "Lists the agents kepoki can run",
	}, s.handleListAgents); err != nil {
		return err
	}
	return Register(s.registry, ToolDef{
		Name:        "describe_agent",
		Description: "Returns the definition of a named agent",
	}, s.handleDescribeAgent)
}

func (s *Server) handleSayHello(ctx context.Context, params sayHelloParams) (any, error) {
	return "Hello, world!", nil
}

// handleListAgents lists registered agents plus the built-in default
func (s *Server) handleListAgents(ctx context.Context, params listAgentsParams) (any, error) {
	builtin := definition.Default()
	out := AgentList{Agents: []definition.Summary{{Name: builtin.Name, Description: builtin.Description}}}
	if s.agents == nil {
		return out, nil
	}

	registered, err := s.agents.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, agent := range registered {
		if agent.Name == builtin.Name {
			out.Agents[0] = agent
			continue
		}
		out.Agents = append(out.Agents, agent)
	}
	return out, nil
}

func (s *Server) handleDescribeAgent(ctx context.Context, params describeAgentParams) (any, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if s.agents == nil {
		if params.Name == definition.DefaultName {
			return definition.Default(), nil
		}
		return nil, fmt.Errorf("%w: %s", definition.ErrAgentNotFound, params.Name)
	}
	return s.agents.Lookup(ctx, params.Name)
}
