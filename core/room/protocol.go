package room

// Frame types exchanged over a websocket room. Client frames are JSON text
// messages; binary messages carry user audio inbound and persona audio
// outbound, each binary frame following the agent_text frame it belongs to.
const (
	FrameUserText   = "user_text"
	FrameInterrupt  = "interrupt"
	FrameAgentText  = "agent_text"
	FrameAttributes = "attributes"
	FrameError      = "error"
)

// ClientFrame is a JSON frame sent by the user side.
type ClientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ServerFrame is a JSON frame sent to the user side.
type ServerFrame struct {
	Type       string            `json:"type"`
	Persona    string            `json:"persona,omitempty"`
	Text       string            `json:"text,omitempty"`
	HasAudio   bool              `json:"has_audio,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Message    string            `json:"message,omitempty"`
}
