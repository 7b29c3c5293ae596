package loader

import (
	"encoding/json"
	"strings"

	"github.com/zjrosen/autohub/internal/workflow"
)

// Operation names of the line protocol. A workflow process reads one JSON
// request per line on stdin and answers with one JSON response per line on
// stdout. A response is a JSON object with an "ok" member; any other stdout
// line, including JSON the workflow prints itself, is treated as log output.
const (
	OpDescribe  = "describe"
	OpConfigure = "configure"
	OpValidate  = "validate"
	OpExecute   = "execute"
)

// lifecycleOps lists the operations every workflow must implement.
var lifecycleOps = []string{OpConfigure, OpValidate, OpExecute}

type request struct {
	Op        string         `json:"op"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type response struct {
	OK         bool           `json:"ok"`
	Error      string         `json:"error,omitempty"`
	Valid      *bool          `json:"valid,omitempty"`
	Operations []string       `json:"operations,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Traceback  string         `json:"traceback,omitempty"`
}

// decodeResponse reports whether line is a protocol response.
func decodeResponse(line string) (response, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return response{}, false
	}
	var marker struct {
		OK *bool `json:"ok"`
	}
	if err := json.Unmarshal([]byte(trimmed), &marker); err != nil || marker.OK == nil {
		return response{}, false
	}
	var resp response
	if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
		return response{}, false
	}
	return resp, true
}

func stageOf(op string) workflow.Stage {
	switch op {
	case OpConfigure:
		return workflow.StageConfigure
	case OpValidate:
		return workflow.StageValidate
	case OpExecute:
		return workflow.StageExecute
	default:
		return workflow.StageLoad
	}
}
