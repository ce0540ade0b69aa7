package dispatch

// Action tags a Verdict on the wire.
type Action string

const (
	ActionReply Action = "REPLY"
	ActionSkip  Action = "SKIP"
	ActionError Action = "ERROR"
)

// Skip reasons, in the order the gates are evaluated.
const (
	ReasonDisabled      = "Disabled"
	ReasonNoEndpoint    = "No endpoint"
	ReasonEmpty         = "Empty"
	ReasonAutoReplyOff  = "Auto-reply off"
	ReasonPredatesGate  = "Message predates enable time"
	ReasonChatBlocked   = "Chat blocked"
	ReasonNotAllowed    = "Not in allowed list"
	ReasonMissingPrefix = "Missing prefix"
	ReasonEmptyResponse = "Empty response"
)

// PlatformDisabled is the skip reason for a platform whose switch is off.
func PlatformDisabled(platform string) string {
	return platform + " disabled"
}

// Verdict is the dispatcher's answer to one incoming message.
type Verdict struct {
	Action Action `json:"action"`
	Reply  string `json:"reply,omitempty"`
	Delay  int64  `json:"delay,omitempty"` // milliseconds before injecting Reply
	Reason string `json:"reason,omitempty"`
}

func Reply(text string, delayMs int64) Verdict {
	return Verdict{Action: ActionReply, Reply: text, Delay: delayMs}
}

func Skip(reason string) Verdict {
	return Verdict{Action: ActionSkip, Reason: reason}
}

func Error(reason string) Verdict {
	return Verdict{Action: ActionError, Reason: reason}
}
