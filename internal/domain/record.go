package domain

import (
	"fmt"
	"strings"
)

// SourceKind represents the kind of a source document
type SourceKind string

const (
	SourceKindTranscript SourceKind = "transcript"
	SourceKindNotes      SourceKind = "notes"
)

// ViolationPolicy represents how the indexing pipeline reacts to a
// schema violation in extracted output
type ViolationPolicy string

const (
	ViolationPolicySkip  ViolationPolicy = "skip"
	ViolationPolicyAbort ViolationPolicy = "abort"
)

// KnowledgeRecord is one extracted unit of course knowledge: a short topic
// label and the content covering that topic.
type KnowledgeRecord struct {
	Topic   string
	Content string
}

// NewKnowledgeRecord creates a new KnowledgeRecord instance
func NewKnowledgeRecord(topic, content string) KnowledgeRecord {
	return KnowledgeRecord{
		Topic:   topic,
		Content: content,
	}
}

// EntryText renders the stored form of a record. The separator is a hyphen
// followed by two spaces; stored entries and search results share this exact
// layout, so it must never change shape.
func (r KnowledgeRecord) EntryText() string {
	return r.Topic + " -  " + r.Content
}

// Validate validates a KnowledgeRecord instance
func (r KnowledgeRecord) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return fmt.Errorf("record topic is required: %w", ErrMissingRequiredField)
	}
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("record content is required: %w", ErrMissingRequiredField)
	}
	return nil
}

// IsValidSourceKind checks if a SourceKind is valid
func IsValidSourceKind(k SourceKind) bool {
	switch k {
	case SourceKindTranscript, SourceKindNotes:
		return true
	}
	return false
}

// IsValidViolationPolicy checks if a ViolationPolicy is valid
func IsValidViolationPolicy(p ViolationPolicy) bool {
	switch p {
	case ViolationPolicySkip, ViolationPolicyAbort:
		return true
	}
	return false
}
