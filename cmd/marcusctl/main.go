// Command marcusctl is a thin control-protocol client: it posts a
// {tool, arguments} envelope to a running marcusd and prints the response.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	addr := flag.String("addr", "http://localhost:8090", "marcusd control protocol address")
	action := flag.String("action", "", "tool to call: register_agent, request_next_task, report_task_progress, report_blocker, report_task_completion, log_decision, get_task_context, get_project_status, get_agent_status")
	projectID := flag.String("project", "", "project id")
	agentID := flag.String("agent", "", "agent id")
	taskID := flag.String("task", "", "task id")
	name := flag.String("name", "", "agent name (register_agent)")
	role := flag.String("role", "", "agent role (register_agent)")
	percent := flag.Int("percent", 0, "completion percent (report_task_progress)")
	message := flag.String("message", "", "free-text message (progress, blocker, completion, decision)")
	jsonOutput := flag.Bool("json", false, "print the raw JSON response")
	flag.Parse()

	if *action == "" {
		fmt.Fprintf(os.Stderr, "Usage: marcusctl -action <tool> [flags]\n")
		os.Exit(1)
	}

	args, err := buildArguments(*action, *projectID, *agentID, *taskID, *name, *role, *message, *percent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	resp, err := call(*addr, *action, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "call failed: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		json.NewEncoder(os.Stdout).Encode(resp)
		return
	}
	printResponse(resp)
}

type envelope struct {
	Tool      string      `json:"tool"`
	Arguments interface{} `json:"arguments"`
}

type response struct {
	OK    bool                   `json:"ok"`
	Value map[string]interface{} `json:"value"`
	Error map[string]interface{} `json:"error"`
}

func call(addr, tool string, args interface{}) (*response, error) {
	body, err := json.Marshal(envelope{Tool: tool, Arguments: args})
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(http.MethodPost, addr+"/v1/call", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("malformed response: %w (body: %s)", err, data)
	}
	return &out, nil
}

func buildArguments(action, projectID, agentID, taskID, name, role, message string, percent int) (map[string]interface{}, error) {
	switch action {
	case "register_agent":
		return map[string]interface{}{"name": name, "role": role}, nil
	case "request_next_task":
		return map[string]interface{}{"project_id": projectID, "agent_id": agentID}, nil
	case "report_task_progress":
		return map[string]interface{}{"project_id": projectID, "agent_id": agentID, "task_id": taskID, "percent": percent, "message": message}, nil
	case "report_blocker":
		return map[string]interface{}{"project_id": projectID, "agent_id": agentID, "task_id": taskID, "description": message}, nil
	case "report_task_completion":
		return map[string]interface{}{"project_id": projectID, "agent_id": agentID, "task_id": taskID, "summary": message}, nil
	case "log_decision":
		return map[string]interface{}{"project_id": projectID, "agent_id": agentID, "task_id": taskID, "text": message}, nil
	case "get_task_context":
		return map[string]interface{}{"project_id": projectID, "task_id": taskID}, nil
	case "get_project_status":
		return map[string]interface{}{"project_id": projectID}, nil
	case "get_agent_status":
		return map[string]interface{}{"agent_id": agentID}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

func printResponse(resp *response) {
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "error: %v\n", resp.Error)
		os.Exit(1)
	}
	for k, v := range resp.Value {
		fmt.Printf("%s: %v\n", k, v)
	}
}
