package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// TaskKind discriminates a Task's Payload.
type TaskKind string

const (
	TaskKindAnalyze           TaskKind = "analyze"
	TaskKindGenerateVariation TaskKind = "generate_variation"
)

// Task id prefixes. These are stable external strings; they appear in logs
// and in the worker id embedded in per-task lock keys.
const (
	AnalyzeTaskPrefix           = "h51_analyze_task"
	GenerateVariationTaskPrefix = "h51_generate_variation_task"
	WorkerIDPrefix              = "h51_asset_worker"
)

// CapabilityCall is one (name, settings) step of an analyzer or transform
// pipeline, in caller-specified order.
type CapabilityCall struct {
	Name     string         `json:"name"`
	Settings map[string]any `json:"settings"`
}

// UnmarshalJSON accepts the external `[name, {settings}]` pair form (§6's
// `analyzers=[[name,{settings}],…]`, ported from the original's
// two-element list convention) as well as the `{"name":…,"settings":…}`
// object form used when a Task round-trips through the queue store.
func (c *CapabilityCall) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err == nil {
		var name string
		if err := json.Unmarshal(pair[0], &name); err != nil {
			return fmt.Errorf("capability call: name must be a string: %w", err)
		}
		var settings map[string]any
		if len(pair[1]) > 0 && string(pair[1]) != "null" {
			if err := json.Unmarshal(pair[1], &settings); err != nil {
				return fmt.Errorf("capability call: settings must be an object: %w", err)
			}
		}
		c.Name, c.Settings = name, settings
		return nil
	}

	type alias CapabilityCall
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("capability call: must be a [name, settings] pair or an object: %w", err)
	}
	*c = CapabilityCall(a)
	return nil
}

// AnalyzePayload is the body of an Analyze task: an ordered analyzer list.
type AnalyzePayload struct {
	Analyzers []CapabilityCall `json:"analyzers"`
}

// GenerateVariationPayload is the body of a GenerateVariation task: one
// variation name and its ordered transform list (last entry must be final).
type GenerateVariationPayload struct {
	VariationName string           `json:"variation_name"`
	Transforms    []CapabilityCall `json:"transforms"`
}

// Task is a unit of work dispatched through the queue.
type Task struct {
	ID              string   `json:"id"`
	Kind            TaskKind `json:"kind"`
	AccountID       string   `json:"account_id"`
	AssetID         string   `json:"asset_id"`
	NotificationURL string   `json:"notification_url,omitempty"`
	CreatedAtUnix   int64    `json:"created_at"`
	AssignedTo      string   `json:"assigned_to,omitempty"`

	Analyze           *AnalyzePayload           `json:"analyze,omitempty"`
	GenerateVariation *GenerateVariationPayload `json:"generate_variation,omitempty"`
}

// NewTaskID returns a globally unique task id prefixed per kind.
func NewTaskID(kind TaskKind) string {
	prefix := AnalyzeTaskPrefix
	if kind == TaskKindGenerateVariation {
		prefix = GenerateVariationTaskPrefix
	}
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

// NewWorkerID returns a globally unique worker id.
func NewWorkerID() string {
	return fmt.Sprintf("%s_%s", WorkerIDPrefix, uuid.NewString())
}

// Marshal serializes the task for storage in the queue's key-value store.
func (t *Task) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// UnmarshalTask deserializes a task record. A json.Unmarshal error here is
// the queue layer's "malformed_task" condition (§4.3).
func UnmarshalTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	if t.Kind == TaskKindAnalyze && t.Analyze == nil {
		return nil, fmt.Errorf("malformed task %s: missing analyze payload", t.ID)
	}
	if t.Kind == TaskKindGenerateVariation && t.GenerateVariation == nil {
		return nil, fmt.Errorf("malformed task %s: missing generate_variation payload", t.ID)
	}
	return &t, nil
}
