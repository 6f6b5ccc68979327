package routing

// Kind tells a success from the degraded terminal response.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
)

// FailureReason explains a terminal failure.
type FailureReason string

const (
	// ReasonUnconfigured: the catalog produced no provider group.
	ReasonUnconfigured FailureReason = "unconfigured"

	// ReasonExhausted: every provider group was tried and none succeeded.
	ReasonExhausted FailureReason = "exhausted"

	// ReasonCanceled: the caller went away before any provider answered.
	ReasonCanceled FailureReason = "canceled"
)

// Fixed terminal payload.
const (
	FallbackText     = "[CRITICAL]: All AI Clusters at Capacity. Switching to static fallback mode."
	FallbackProvider = "NONE"
	FallbackModel    = "FALLBACK"
	fallbackMessage  = "Kernel is currently at peak capacity. Please reach out directly while I reboot my clusters."
)

// Component is a UI component the caller is advised to render.
type Component struct {
	Name  string                 `json:"name"`
	Props map[string]interface{} `json:"props"`
}

// Orchestration is an advisory rendering directive.
type Orchestration struct {
	Action    string     `json:"action"`
	Stage     string     `json:"stage,omitempty"`
	Component *Component `json:"component,omitempty"`
}

// Outcome is the single result of a routing request.
type Outcome struct {
	Kind          Kind           `json:"-"`
	Reason        FailureReason  `json:"-"`
	Text          string         `json:"text"`
	Provider      string         `json:"provider"`
	Model         string         `json:"model"`
	LatencyMs     int64          `json:"latencyMs"`
	KeyID         int64          `json:"keyId"`
	Orchestration *Orchestration `json:"orchestration,omitempty"`
}

// IsSuccess reports whether a provider produced the text.
func (o *Outcome) IsSuccess() bool {
	return o.Kind == KindSuccess
}

func terminalFailure(reason FailureReason, latencyMs int64) *Outcome {
	return &Outcome{
		Kind:      KindFailure,
		Reason:    reason,
		Text:      FallbackText,
		Provider:  FallbackProvider,
		Model:     FallbackModel,
		LatencyMs: latencyMs,
		KeyID:     0,
		Orchestration: &Orchestration{
			Action: "RENDER",
			Component: &Component{
				Name: "ContactCard",
				Props: map[string]interface{}{
					"type":    "hire",
					"message": fallbackMessage,
				},
			},
		},
	}
}
