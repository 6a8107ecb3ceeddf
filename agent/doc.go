// Copyright 2024 AgentRelay Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package agent provides the agent contract, the shared workflow state and the
agent registry used by the agentrelay engine.

# Overview

An agent is a named unit that takes one turn over a shared WorkflowState and
may ask to hand control to another agent. The engine (package workflow)
decides who runs next; agents only signal.

	┌──────────────────────────────────────────────────────────┐
	│                      Agent Interface                     │
	│         (Name, Process, HandoffTargets)                  │
	├──────────────────────────────────────────────────────────┤
	│  ContentAgent (ProcessFunc + Turn)  │  PassthroughAgent  │
	├──────────────────────────────────────────────────────────┤
	│           Registry (registration order, Version)         │
	├──────────────────────────────────────────────────────────┤
	│      Kinds (declarative script / echo / passthrough)     │
	└──────────────────────────────────────────────────────────┘

# Core Components

Agent: Defines the contract for all agents.

	type Agent interface {
	    Name() string
	    Process(ctx context.Context, state *WorkflowState) (*WorkflowState, error)
	    HandoffTargets() []string
	}

Optional capabilities are discovered by type assertion: ToolBinder receives
the transfer tools built by package handoff, Initializer runs once when the
graph is compiled.

WorkflowState: The record threaded through every turn. Messages are
append-only; Status only moves pending → in_progress → completed/error.

Registry: Holds agents by name. List returns registration order, which is
the router's deterministic fallback chain. Every mutation bumps Version so
compiled graphs know they are stale.

# Signalling a Handoff

Agents built with NewContentAgent use the Turn helper:

	planner := agent.NewContentAgent("Planner",
	    func(ctx context.Context, t *agent.Turn) error {
	        t.Say("drafted the plan")
	        return t.Transfer(ctx, "Architect", "needs design")
	    },
	    agent.WithTargets("Architect"),
	)

Transfer calls the bound transfer_to_Architect tool, appends its
confirmation and sets WorkflowState.Handoff. Complete appends "TASK
COMPLETE" and moves the session to completed. Agents that only produce text
may instead write "transfer_to_<Name>: <reason>" in their reply; the router
recognizes it as a fallback.

# Declarative Agents

Kinds builds agents from configuration:

	kinds := agent.NewKinds(logger)
	err := kinds.RegisterDefinitions(registry, []agent.Definition{{
	    Name: "Planner", Kind: agent.KindScript, Targets: []string{"Architect"},
	    Options: map[string]any{"replies": []any{"transfer_to_Architect: design"}},
	}})

# Error Handling

Registry errors are *types.Error values: DUPLICATE_NAME for a second
registration under the same name, NOT_FOUND for unknown names. errors.Is
works against ErrDuplicateName and ErrNotFound.
*/
package agent
