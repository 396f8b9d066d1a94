package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// InsightOrigin records how an insight was produced
type InsightOrigin string

// InsightOrigin constants
const (
	InsightOriginTemplate InsightOrigin = "template"
	InsightOriginLLM      InsightOrigin = "llm"
)

// WidgetInsight is a generated commentary row for one dashboard card tab.
// Rows are appended only when the input digest differs from the latest
// stored row for the same (card, tab, scope, lang).
type WidgetInsight struct {
	ID              string        `json:"id"` // ins_<uuid>
	CardKey         string        `json:"card_key"`
	TabKey          string        `json:"tab_key"`
	Scope           string        `json:"scope"`
	Lang            string        `json:"lang"`
	Content         string        `json:"content"`
	References      []Reference   `json:"references,omitempty"`
	DataDigest      string        `json:"data_digest"` // sha256 over canonical input identity
	InputKeys       []string      `json:"input_keys"`  // Snapshot identities consulted
	SourceUpdatedAt *time.Time    `json:"source_updated_at,omitempty"`
	GeneratedBy     InsightOrigin `json:"generated_by"`
	LLMProvider     string        `json:"llm_provider,omitempty"`
	LLMModel        string        `json:"llm_model,omitempty"`
	JobRunID        string        `json:"job_run_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// MarshalReferences serializes the reference list to JSON string for database storage
func (i *WidgetInsight) MarshalReferences() (string, error) {
	if i.References == nil {
		return "[]", nil
	}
	data, err := json.Marshal(i.References)
	if err != nil {
		return "", fmt.Errorf("failed to marshal references: %w", err)
	}
	return string(data), nil
}

// UnmarshalReferences deserializes the references JSON string from database
func (i *WidgetInsight) UnmarshalReferences(data string) error {
	if data == "" || data == "[]" {
		i.References = nil
		return nil
	}
	if err := json.Unmarshal([]byte(data), &i.References); err != nil {
		return fmt.Errorf("failed to unmarshal references: %w", err)
	}
	return nil
}

// MarshalInputKeys serializes the input key list to JSON string for database storage
func (i *WidgetInsight) MarshalInputKeys() (string, error) {
	if i.InputKeys == nil {
		return "[]", nil
	}
	data, err := json.Marshal(i.InputKeys)
	if err != nil {
		return "", fmt.Errorf("failed to marshal input keys: %w", err)
	}
	return string(data), nil
}

// UnmarshalInputKeys deserializes the input keys JSON string from database
func (i *WidgetInsight) UnmarshalInputKeys(data string) error {
	if data == "" || data == "[]" {
		i.InputKeys = nil
		return nil
	}
	if err := json.Unmarshal([]byte(data), &i.InputKeys); err != nil {
		return fmt.Errorf("failed to unmarshal input keys: %w", err)
	}
	return nil
}

// InsightGenerateLog is the audit record for one LLM attempt. A row is
// written for every attempt, success or failure, and never on a digest
// cache hit.
type InsightGenerateLog struct {
	ID             string    `json:"id"` // llm_<uuid>
	CardKey        string    `json:"card_key"`
	TabKey         string    `json:"tab_key"`
	Scope          string    `json:"scope"`
	Lang           string    `json:"lang"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	Endpoint       string    `json:"endpoint,omitempty"`
	RequestPayload string    `json:"request_payload,omitempty"`
	ResponseStatus int       `json:"response_status,omitempty"`
	ResponseRaw    string    `json:"response_raw,omitempty"`
	ParsedContent  string    `json:"parsed_content,omitempty"`
	References     string    `json:"references,omitempty"` // JSON array as returned by the model
	OK             bool      `json:"ok"`
	Error          string    `json:"error,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	CreatedAt      time.Time `json:"created_at"`
}

// InsightJobState holds the durable round-robin cursor for batched
// insight generation.
type InsightJobState struct {
	JobName   string    `json:"job_name"`
	Cursor    int       `json:"cursor"`
	UpdatedAt time.Time `json:"updated_at"`
}
