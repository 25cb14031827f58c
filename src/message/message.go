// Package message defines the messages produced for downstream consumers
// and the constructor they are built through.
package message

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/value"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

var (
	ErrInvalidRole = errors.New("invalid role")
	ErrMissingName = errors.New("message name is required")
)

// Msg is a single message handed to the consumer.
type Msg struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Role      Role        `json:"role"`
	Content   value.Value `json:"content"`
	Metadata  value.Value `json:"metadata"`
	Timestamp time.Time   `json:"timestamp"`
}

// Params are the caller-supplied fields of a new message.
type Params struct {
	Name     string
	Role     Role
	Content  value.Value
	Metadata value.Value
}

// Constructor builds a message from params.
type Constructor func(Params) (*Msg, error)

// Builder is the base constructor. Zero fields fall back to random UUIDs
// and the wall clock.
type Builder struct {
	NewID func() string
	Now   func() time.Time
}

// Build validates p and returns a new message.
func (b Builder) Build(p Params) (*Msg, error) {
	if p.Name == "" {
		return nil, ErrMissingName
	}
	switch p.Role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}

	newID := b.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := b.Now
	if now == nil {
		now = time.Now
	}

	return &Msg{
		ID:        newID(),
		Name:      p.Name,
		Role:      p.Role,
		Content:   p.Content,
		Metadata:  p.Metadata,
		Timestamp: now().UTC(),
	}, nil
}

// New builds a message with the default Builder.
func New(p Params) (*Msg, error) {
	return Builder{}.Build(p)
}
