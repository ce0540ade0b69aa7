package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zulandar/airminal/internal/dispatch"
	"github.com/zulandar/airminal/internal/models"
	"github.com/zulandar/airminal/internal/poster"
	"github.com/zulandar/airminal/internal/settings"
)

// Message types of the tab protocol.
const (
	TypeNewMessage          = "NEW_MESSAGE"
	TypeGetConfig           = "GET_CONFIG"
	TypeSaveConfig          = "SAVE_CONFIG"
	TypeGetStatus           = "GET_STATUS"
	TypeClearSessions       = "CLEAR_SESSIONS"
	TypeTestConnection      = "TEST_CONNECTION"
	TypeTriggerAutomation   = "TRIGGER_AUTOMATION"
	TypeGetAutomationStatus = "GET_AUTOMATION_STATUS"
	TypeScheduledPost       = "SCHEDULED_POST"
	// TypeConfigUpdated is broadcast only.
	TypeConfigUpdated = "CONFIG_UPDATED"
)

// ErrUnknownType is returned by Handle for a type it does not answer.
var ErrUnknownType = errors.New("bridge: unknown message type")

// ConfigResponse answers GET_CONFIG and is the CONFIG_UPDATED payload.
type ConfigResponse struct {
	Type   string                `json:"type,omitempty"`
	Config settings.GlobalConfig `json:"config"`
}

// SuccessResponse answers SAVE_CONFIG and CLEAR_SESSIONS.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AutomationsResponse answers GET_AUTOMATION_STATUS.
type AutomationsResponse struct {
	Automations map[string]AutomationStatus `json:"automations"`
}

// RunView is one automation run as returned by the API.
type RunView struct {
	ID         uint   `json:"id"`
	Trigger    string `json:"trigger"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Message    string `json:"message,omitempty"`
	Caption    string `json:"caption,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
	StartedAt  int64  `json:"startedAt"`
	FinishedAt int64  `json:"finishedAt"`
}

func newRunView(r models.AutomationRun) RunView {
	return RunView{
		ID:         r.ID,
		Trigger:    r.Trigger,
		Success:    r.Success,
		Error:      r.Error,
		Message:    r.Message,
		Caption:    r.Caption,
		ImageURL:   r.ImageURL,
		StartedAt:  r.StartedAt.UnixMilli(),
		FinishedAt: r.FinishedAt.UnixMilli(),
	}
}

// envelope is the {type, ...payload} wire form. Payload fields of every
// type share one namespace.
type envelope struct {
	Type         string          `json:"type"`
	Config       json.RawMessage `json:"config,omitempty"`
	AutomationID string          `json:"automationId,omitempty"`
	Platform     string          `json:"platform,omitempty"`
	Caption      string          `json:"caption,omitempty"`
	ImageURL     string          `json:"imageUrl,omitempty"`
}

// Handle answers one protocol message and returns the response value to
// encode. Malformed input and unknown types are errors; failures of a known
// operation are reported inside the response.
func (h *Hub) Handle(ctx context.Context, raw []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("bridge: decode message: %w", err)
	}

	switch env.Type {
	case TypeNewMessage:
		var ev dispatch.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("bridge: decode %s: %w", env.Type, err)
		}
		return h.NewMessage(ctx, ev), nil

	case TypeGetConfig:
		return ConfigResponse{Config: h.Config()}, nil

	case TypeSaveConfig:
		if len(env.Config) == 0 {
			return SuccessResponse{Error: "config is required"}, nil
		}
		if err := h.SaveConfig(ctx, env.Config); err != nil {
			return SuccessResponse{Error: err.Error()}, nil
		}
		return SuccessResponse{Success: true}, nil

	case TypeGetStatus:
		return h.Status(), nil

	case TypeClearSessions:
		h.ClearSessions()
		return SuccessResponse{Success: true}, nil

	case TypeTestConnection:
		return h.TestConnection(ctx), nil

	case TypeTriggerAutomation:
		return h.TriggerAutomation(ctx, env.AutomationID), nil

	case TypeGetAutomationStatus:
		return AutomationsResponse{Automations: h.Automations()}, nil

	case TypeScheduledPost:
		return h.ScheduledPost(ctx, env.Platform, poster.Content{Caption: env.Caption, ImageURL: env.ImageURL}), nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownType, env.Type)
}

// ConfigUpdated builds the CONFIG_UPDATED broadcast for cfg.
func ConfigUpdated(cfg settings.GlobalConfig) ConfigResponse {
	return ConfigResponse{Type: TypeConfigUpdated, Config: cfg}
}
