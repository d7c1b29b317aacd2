package flow

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/model"
)

// globalInstructionProvider is implemented by root agents that define a
// tree-wide instruction preamble.
type globalInstructionProvider interface {
	GlobalInstruction(ictx *core.InvocationContext) (string, error)
}

// instructionsProcessor resolves the agent's instruction, renders template
// variables against the merged session state and prepends the root agent's
// global instruction when one is defined.
type instructionsProcessor struct{}

func (p *instructionsProcessor) Name() string { return "instructions" }

func (p *instructionsProcessor) ProcessRequest(ictx *core.InvocationContext, agent FlowAgent, req *model.Request) error {
	state := ictx.State().All()

	if root := core.RootAgent(agent); root != nil {
		if gp, ok := root.(globalInstructionProvider); ok {
			text, err := gp.GlobalInstruction(ictx)
			if err != nil {
				return err
			}
			if text != "" {
				rendered, err := util.RenderTemplate(text, state)
				if err != nil {
					return fmt.Errorf("render global instruction: %w", err)
				}
				appendInstructions(req, rendered)
			}
		}
	}

	text, err := agent.Instruction(ictx)
	if err != nil {
		return err
	}
	if text != "" {
		rendered, err := util.RenderTemplate(text, state)
		if err != nil {
			return fmt.Errorf("render instruction: %w", err)
		}
		appendInstructions(req, rendered)
	}
	return nil
}

// appendInstructions joins non-empty sections onto the request instructions,
// separated by blank lines.
func appendInstructions(req *model.Request, sections ...string) {
	for _, s := range sections {
		if s == "" {
			continue
		}
		if req.Instructions == "" {
			req.Instructions = s
		} else {
			req.Instructions += "\n\n" + s
		}
	}
}

// identityProcessor tells the model who it is, so multi-agent conversations
// stay attributable.
type identityProcessor struct{}

func (p *identityProcessor) Name() string { return "identity" }

func (p *identityProcessor) ProcessRequest(ictx *core.InvocationContext, agent FlowAgent, req *model.Request) error {
	lines := []string{fmt.Sprintf("You are an agent. Your internal name is %q.", agent.Name())}
	if desc := agent.Description(); desc != "" {
		lines = append(lines, fmt.Sprintf("The description about you is %q.", desc))
	}
	appendInstructions(req, strings.Join(lines, " "))
	return nil
}

// contentsProcessor assembles the conversation window: the branch-visible,
// non-partial history in append order, or just the triggering user message
// when the agent opts out of history.
type contentsProcessor struct{}

func (p *contentsProcessor) Name() string { return "contents" }

func (p *contentsProcessor) ProcessRequest(ictx *core.InvocationContext, agent FlowAgent, req *model.Request) error {
	if agent.IncludeContents() == IncludeContentsNone || ictx.Session == nil {
		if ictx.UserContent != nil {
			req.Contents = append(req.Contents, *ictx.UserContent)
		}
		return nil
	}

	for _, ev := range ictx.Session.GetEvents() {
		if ev.IsPartial() || ev.Content == nil || len(ev.Content.Parts) == 0 {
			continue
		}
		if !ev.InBranch(ictx.Branch) {
			continue
		}
		req.Contents = append(req.Contents, *ev.Content)
	}
	return nil
}
