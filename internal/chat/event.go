// Package chat holds the wire types exchanged with the chat platform.
package chat

import (
	"encoding/json"
	"strings"
)

type EventType string

const (
	EventMessage          EventType = "MESSAGE"
	EventAddedToSpace     EventType = "ADDED_TO_SPACE"
	EventRemovedFromSpace EventType = "REMOVED_FROM_SPACE"
	EventCardClicked      EventType = "CARD_CLICKED"
)

// DialogCancel is the dialogEventType sent when the user closes a dialog.
const DialogCancel = "CANCEL_DIALOG"

// Event is an interaction event delivered to the app endpoint.
type Event struct {
	Type            EventType `json:"type"`
	EventTime       string    `json:"eventTime,omitempty"`
	Space           Space     `json:"space"`
	User            User      `json:"user"`
	Message         *Message  `json:"message,omitempty"`
	Common          *Common   `json:"common,omitempty"`
	IsDialogEvent   bool      `json:"isDialogEvent,omitempty"`
	DialogEventType string    `json:"dialogEventType,omitempty"`
}

type Space struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	Type        string `json:"type,omitempty"`
}

type User struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Email       string `json:"email,omitempty"`
	Type        string `json:"type,omitempty"`
}

type Message struct {
	Name         string        `json:"name,omitempty"`
	Text         string        `json:"text,omitempty"`
	ArgumentText string        `json:"argumentText,omitempty"`
	SlashCommand *SlashCommand `json:"slashCommand,omitempty"`
}

type SlashCommand struct {
	// CommandID arrives as a number or a numeric string.
	CommandID json.Number `json:"commandId"`
}

// ID returns the numeric command id, or 0 when it cannot be parsed.
func (c SlashCommand) ID() int64 {
	id, err := c.CommandID.Int64()
	if err != nil {
		return 0
	}
	return id
}

type Common struct {
	InvokedFunction string               `json:"invokedFunction,omitempty"`
	Parameters      map[string]string    `json:"parameters,omitempty"`
	FormInputs      map[string]FormInput `json:"formInputs,omitempty"`
}

type FormInput struct {
	StringInputs *StringInputs `json:"stringInputs,omitempty"`
}

type StringInputs struct {
	Value []string `json:"value"`
}

// InvokedFunction returns the action name of a card click, if any.
func (e Event) InvokedFunction() string {
	if e.Common == nil {
		return ""
	}
	return e.Common.InvokedFunction
}

// Param returns an action parameter, or "" when absent.
func (e Event) Param(key string) string {
	if e.Common == nil {
		return ""
	}
	return e.Common.Parameters[key]
}

// FormValue returns the first string value of a form input, or "".
func (e Event) FormValue(name string) string {
	if e.Common == nil {
		return ""
	}
	in, ok := e.Common.FormInputs[name]
	if !ok || in.StringInputs == nil || len(in.StringInputs.Value) == 0 {
		return ""
	}
	return in.StringInputs.Value[0]
}

// HasFormValue reports whether the form carried the named input.
func (e Event) HasFormValue(name string) bool {
	if e.Common == nil {
		return false
	}
	in, ok := e.Common.FormInputs[name]
	return ok && in.StringInputs != nil && len(in.StringInputs.Value) > 0
}

// ArgumentText returns the message text after the command or mention.
func (e Event) ArgumentText() string {
	if e.Message == nil {
		return ""
	}
	return e.Message.ArgumentText
}

// SlashCommandID returns the invoked slash command id, 0 when none.
func (e Event) SlashCommandID() int64 {
	if e.Message == nil || e.Message.SlashCommand == nil {
		return 0
	}
	return e.Message.SlashCommand.ID()
}

// IsSlashCommand reports whether the message invoked a slash command.
func (e Event) IsSlashCommand() bool {
	return e.Message != nil && e.Message.SlashCommand != nil
}

// IsDialogCancel reports whether the user dismissed a dialog.
func (e Event) IsDialogCancel() bool {
	return e.IsDialogEvent && strings.EqualFold(e.DialogEventType, DialogCancel)
}
