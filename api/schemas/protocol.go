// api/schemas/protocol.go
package schemas

import "encoding/json"

// EndpointName is the well-known name of the local IPC channel. The server
// listens on "<socket dir>/<EndpointName>.sock".
const EndpointName = "puppeteer"

// Operation names. Request and response share the operation name; that is
// the only correlation mechanism on the wire.
const (
	OpLaunch   = "launch"
	OpExec     = "exec"
	OpCheck    = "check"
	OpShutdown = "shutdown"
	OpError    = "error"
)

// Envelope frames every IPC message: one JSON object per line.
type Envelope struct {
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorReply is the payload of an OpError envelope (protocol-level failures
// such as an unknown operation; handler failures ride in the op's own reply).
type ErrorReply struct {
	Error string `json:"error"`
}

// LaunchRequest asks the server to ensure a browser session exists for the
// execution id, starting one with the given options if needed.
type LaunchRequest struct {
	GlobalOptions GlobalOptions `json:"globalOptions"`
	ExecutionID   string        `json:"executionId"`
}

// LaunchReply reports whether a session is now registered. It is true even
// when the session pre-existed; false means the browser failed to start.
type LaunchReply struct {
	Launched bool `json:"launched"`
}

// ExecRequest runs a step pipeline against the registered session.
type ExecRequest struct {
	GlobalOptions  GlobalOptions `json:"globalOptions"`
	Steps          []Step        `json:"steps"`
	ExecutionID    string        `json:"executionId"`
	ContinueOnFail bool          `json:"continueOnFail,omitempty"`
}

// ExecReply carries the pipeline result, including partial output when the
// pipeline aborted midway.
type ExecReply struct {
	Result PipelineResult `json:"result"`
}

// CheckRequest arms the background reaper for the execution: the server polls
// the workflow engine's status API until the execution finishes, then closes
// the session's browser.
type CheckRequest struct {
	ExecutionID string `json:"executionId"`
	APIKey      string `json:"apiKey"`
	BaseURL     string `json:"baseUrl"`
}

// CheckReply acknowledges that the request was received. The reaping itself
// happens asynchronously.
type CheckReply struct {
	Acknowledged bool `json:"acknowledged"`
}

// ShutdownRequest closes the session's browser immediately.
type ShutdownRequest struct {
	ExecutionID string `json:"executionId"`
}

// ShutdownReply reports whether a session existed for the execution id.
type ShutdownReply struct {
	Existed bool `json:"existed"`
}
