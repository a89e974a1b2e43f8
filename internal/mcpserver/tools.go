package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/marcus-ai/marcus/internal/coordinator"
)

// ack is the uniform success payload for operations that have nothing more
// specific to report (spec §6 result column "ack").
type ack struct {
	Ack bool `json:"ack"`
}

// buildRegistry wires every spec §6 tool to the coordinator, keyed by the
// project id carried in each request's arguments.
func buildRegistry(c *coordinator.Coordinator) *Registry {
	return NewRegistry(
		Entry(ToolRegisterAgent, handleRegisterAgent(c)),
		Entry(ToolRequestNextTask, handleRequestNextTask(c)),
		Entry(ToolReportTaskProgress, handleReportTaskProgress(c)),
		Entry(ToolReportBlocker, handleReportBlocker(c)),
		Entry(ToolReportTaskCompletion, handleReportTaskCompletion(c)),
		Entry(ToolLogDecision, handleLogDecision(c)),
		Entry(ToolGetTaskContext, handleGetTaskContext(c)),
		Entry(ToolGetProjectStatus, handleGetProjectStatus(c)),
		Entry(ToolGetAgentStatus, handleGetAgentStatus(c)),
	)
}

func decode(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, v)
}

func handleRegisterAgent(c *coordinator.Coordinator) Handler {
	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var req struct {
			Name   string   `json:"name"`
			Role   string   `json:"role"`
			Skills []string `json:"skills"`
		}
		if err := decode(args, &req); err != nil {
			return nil, malformedInput("invalid register_agent arguments: %v", err)
		}
		agent, err := c.RegisterAgent(req.Name, req.Role, req.Skills)
		if err != nil {
			return nil, err
		}
		return map[string]string{"agent_id": agent.ID}, nil
	}
}

func handleRequestNextTask(c *coordinator.Coordinator) Handler {
	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var req struct {
			ProjectID string `json:"project_id"`
			AgentID   string `json:"agent_id"`
		}
		if err := decode(args, &req); err != nil {
			return nil, malformedInput("invalid request_next_task arguments: %v", err)
		}
		task, bundle, err := c.RequestNextTask(ctx, req.ProjectID, req.AgentID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"task": task, "context": bundle}, nil
	}
}

func handleReportTaskProgress(c *coordinator.Coordinator) Handler {
	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var req struct {
			ProjectID string `json:"project_id"`
			AgentID   string `json:"agent_id"`
			TaskID    string `json:"task_id"`
			Percent   int    `json:"percent"`
			Message   string `json:"message"`
		}
		if err := decode(args, &req); err != nil {
			return nil, malformedInput("invalid report_task_progress arguments: %v", err)
		}
		if err := c.ReportProgress(ctx, req.ProjectID, req.AgentID, req.TaskID, req.Percent, req.Message); err != nil {
			return nil, err
		}
		return ack{Ack: true}, nil
	}
}

func handleReportBlocker(c *coordinator.Coordinator) Handler {
	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var req struct {
			ProjectID   string `json:"project_id"`
			AgentID     string `json:"agent_id"`
			TaskID      string `json:"task_id"`
			Description string `json:"description"`
		}
		if err := decode(args, &req); err != nil {
			return nil, malformedInput("invalid report_blocker arguments: %v", err)
		}
		suggestion, err := c.ReportBlocker(ctx, req.ProjectID, req.AgentID, req.TaskID, req.Description)
		if err != nil {
			return nil, err
		}
		if suggestion == "" {
			return map[string]interface{}{}, nil
		}
		return map[string]interface{}{"suggestion": suggestion}, nil
	}
}

func handleReportTaskCompletion(c *coordinator.Coordinator) Handler {
	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var req struct {
			ProjectID string `json:"project_id"`
			AgentID   string `json:"agent_id"`
			TaskID    string `json:"task_id"`
			Summary   string `json:"summary"`
		}
		if err := decode(args, &req); err != nil {
			return nil, malformedInput("invalid report_task_completion arguments: %v", err)
		}
		if err := c.ReportCompletion(ctx, req.ProjectID, req.AgentID, req.TaskID, req.Summary); err != nil {
			return nil, err
		}
		return ack{Ack: true}, nil
	}
}

func handleLogDecision(c *coordinator.Coordinator) Handler {
	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var req struct {
			ProjectID string `json:"project_id"`
			AgentID   string `json:"agent_id"`
			TaskID    string `json:"task_id"`
			Text      string `json:"text"`
		}
		if err := decode(args, &req); err != nil {
			return nil, malformedInput("invalid log_decision arguments: %v", err)
		}
		d, err := c.LogDecision(req.ProjectID, req.AgentID, req.TaskID, req.Text)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"decision_id": d.ID}, nil
	}
}

func handleGetTaskContext(c *coordinator.Coordinator) Handler {
	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var req struct {
			ProjectID string `json:"project_id"`
			TaskID    string `json:"task_id"`
		}
		if err := decode(args, &req); err != nil {
			return nil, malformedInput("invalid get_task_context arguments: %v", err)
		}
		bundle, err := c.GetTaskContext(ctx, req.ProjectID, req.TaskID)
		if err != nil {
			return nil, err
		}
		return bundle, nil
	}
}

func handleGetProjectStatus(c *coordinator.Coordinator) Handler {
	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var req struct {
			ProjectID string `json:"project_id"`
		}
		if err := decode(args, &req); err != nil {
			return nil, malformedInput("invalid get_project_status arguments: %v", err)
		}
		return c.ProjectStatus(req.ProjectID)
	}
}

func handleGetAgentStatus(c *coordinator.Coordinator) Handler {
	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		var req struct {
			AgentID string `json:"agent_id"`
		}
		if err := decode(args, &req); err != nil {
			return nil, malformedInput("invalid get_agent_status arguments: %v", err)
		}
		return c.AgentStatus(req.AgentID)
	}
}

func malformedInput(format string, args ...interface{}) error {
	return &coordinator.Error{
		Kind:      coordinator.KindMalformedInput,
		Message:   fmt.Sprintf(format, args...),
		Retriable: false,
	}
}
