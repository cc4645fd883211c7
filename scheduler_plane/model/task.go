package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Task represents a unit of work read off the ingress stream.
type Task struct {
	ID                   string            `json:"id"`
	Type                 string            `json:"type"` // Stable key for duration learning
	Priority             int               `json:"priority"`
	CreatedAt            time.Time         `json:"created_at"`
	Payload              json.RawMessage   `json:"payload"`
	RequiredCapabilities []string          `json:"required_capabilities,omitempty"`
	MaxRetries           int               `json:"max_retries,omitempty"`
	TimeoutMs            int64             `json:"timeout_ms,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// TaskFromStreamFields parses a task out of the raw field map delivered by the
// ingress consumer group. All stream fields arrive as strings.
func TaskFromStreamFields(fields map[string]interface{}) (*Task, error) {
	id, ok := stringField(fields, "id")
	if !ok || id == "" {
		return nil, fmt.Errorf("task message missing id field")
	}
	typ, _ := stringField(fields, "type")

	task := &Task{
		ID:        id,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}

	if raw, ok := stringField(fields, "priority"); ok && raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("task %s has malformed priority %q: %w", id, raw, err)
		}
		task.Priority = p
	}

	if raw, ok := stringField(fields, "createdAt"); ok && raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("task %s has malformed createdAt %q: %w", id, raw, err)
		}
		task.CreatedAt = t
	}

	if raw, ok := stringField(fields, "payload"); ok && raw != "" {
		if !json.Valid([]byte(raw)) {
			return nil, fmt.Errorf("task %s has malformed payload", id)
		}
		task.Payload = json.RawMessage(raw)
	}

	if raw, ok := stringField(fields, "metadata"); ok && raw != "" {
		var meta struct {
			RequiredCapabilities []string          `json:"required_capabilities"`
			MaxRetries           int               `json:"max_retries"`
			TimeoutMs            int64             `json:"timeout_ms"`
			Labels               map[string]string `json:"labels"`
		}
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, fmt.Errorf("task %s has malformed metadata: %w", id, err)
		}
		task.RequiredCapabilities = meta.RequiredCapabilities
		task.MaxRetries = meta.MaxRetries
		task.TimeoutMs = meta.TimeoutMs
		task.Metadata = meta.Labels
	}

	return task, nil
}

func stringField(fields map[string]interface{}, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Assignment is the payload published on the per-worker dispatch channel.
type Assignment struct {
	TaskID     string    `json:"taskId"`
	Task       *Task     `json:"task"`
	AssignedAt time.Time `json:"assignedAt"`
}

// CompletionEvent is a single record from the completion stream.
type CompletionEvent struct {
	TaskID              string    `json:"taskId"`
	TaskType            string    `json:"taskType"`
	WorkerID            string    `json:"workerId"`
	StartedAt           time.Time `json:"startedAt"`
	CompletedAt         time.Time `json:"completedAt"`
	DurationMs          float64   `json:"durationMs"`
	Success             bool      `json:"success"`
	PredictedDurationMs float64   `json:"predictedDurationMs,omitempty"`
}

// CompletionFromStreamFields parses a completion event from raw stream fields.
func CompletionFromStreamFields(fields map[string]interface{}) (*CompletionEvent, error) {
	taskID, ok := stringField(fields, "taskId")
	if !ok || taskID == "" {
		return nil, fmt.Errorf("completion message missing taskId field")
	}

	ev := &CompletionEvent{TaskID: taskID}
	ev.TaskType, _ = stringField(fields, "taskType")
	ev.WorkerID, _ = stringField(fields, "workerId")

	if raw, ok := stringField(fields, "durationMs"); ok && raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("completion %s has malformed durationMs %q: %w", taskID, raw, err)
		}
		ev.DurationMs = d
	}
	if raw, ok := stringField(fields, "predictedDurationMs"); ok && raw != "" {
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("completion %s has malformed predictedDurationMs %q: %w", taskID, raw, err)
		}
		ev.PredictedDurationMs = d
	}
	if raw, ok := stringField(fields, "success"); ok {
		ev.Success = raw == "true" || raw == "1"
	}
	if raw, ok := stringField(fields, "startedAt"); ok && raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			ev.StartedAt = t
		}
	}
	if raw, ok := stringField(fields, "completedAt"); ok && raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			ev.CompletedAt = t
		}
	}

	return ev, nil
}

// HeartbeatRecord is one telemetry sample from a worker.
type HeartbeatRecord struct {
	WorkerID    string  `json:"workerId"`
	CPUUsage    float64 `json:"cpuUsage"`
	MemoryUsage float64 `json:"memoryUsage"`
	QueueDepth  int     `json:"queueDepth"`
	TimestampMs int64   `json:"timestampMs"`
}
