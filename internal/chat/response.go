package chat

import (
	"encoding/json"

	"storyline/internal/cards"
)

// Kind tags the shape of a Response.
type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindMessage
	KindDialogOpen
	KindDialogStatus
	KindDialogClose
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindText:
		return "text"
	case KindMessage:
		return "message"
	case KindDialogOpen:
		return "dialog_open"
	case KindDialogStatus:
		return "dialog_status"
	case KindDialogClose:
		return "dialog_close"
	}
	return "unknown"
}

const (
	ResponseNewMessage    = "NEW_MESSAGE"
	ResponseUpdateMessage = "UPDATE_MESSAGE"
	ResponseDialog        = "DIALOG"
	StatusOK              = "OK"
)

// CardWithID is a single entry of a message's cardsV2 list.
type CardWithID struct {
	CardID string     `json:"cardId"`
	Card   cards.Card `json:"card"`
}

// ActionStatus is the status reported back to a dialog.
type ActionStatus struct {
	StatusCode        string `json:"statusCode"`
	UserFacingMessage string `json:"userFacingMessage,omitempty"`
}

// Response is the reply to an event. Only the builders below create one, so
// each Kind always carries the payload its wire shape needs.
type Response struct {
	kind     Kind
	text     *string
	cards    []CardWithID
	envelope string
	dialog   *cards.Card
	status   *ActionStatus
}

// Empty acknowledges an event without posting anything.
func Empty() Response { return Response{kind: KindEmpty} }

// Text posts a plain text message.
func Text(text string) Response { return Response{kind: KindText, text: &text} }

// CardMessage posts a new message holding one card. An empty text is omitted.
func CardMessage(text, cardID string, card cards.Card) Response {
	r := Response{kind: KindMessage, cards: []CardWithID{{CardID: cardID, Card: card}}}
	if text != "" {
		r.text = &text
	}
	return r
}

// UpdateMessage replaces the card message the action came from.
func UpdateMessage(text, cardID string, card cards.Card) Response {
	r := CardMessage(text, cardID, card)
	r.envelope = ResponseUpdateMessage
	return r
}

// AsUpdate turns a card message into an update of the originating message.
// Other kinds are returned unchanged.
func (r Response) AsUpdate() Response {
	if r.kind == KindMessage {
		r.envelope = ResponseUpdateMessage
	}
	return r
}

// DialogOpen opens or replaces a dialog with body.
func DialogOpen(body cards.Card) Response {
	return Response{kind: KindDialogOpen, dialog: &body}
}

// DialogStatus reports a status in the open dialog.
func DialogStatus(code, message string) Response {
	return Response{kind: KindDialogStatus, status: &ActionStatus{StatusCode: code, UserFacingMessage: message}}
}

// DialogStatusWithBody reports a status and replaces the dialog body.
func DialogStatusWithBody(code, message string, body cards.Card) Response {
	r := DialogStatus(code, message)
	r.dialog = &body
	return r
}

// DialogClose acknowledges a dismissed dialog.
func DialogClose() Response { return Response{kind: KindDialogClose} }

func (r Response) Kind() Kind { return r.kind }

// TextValue returns the message text and whether one is set.
func (r Response) TextValue() (string, bool) {
	if r.text == nil {
		return "", false
	}
	return *r.text, true
}

func (r Response) Cards() []CardWithID { return r.cards }

// Envelope returns the actionResponse type of a message, "" for none.
func (r Response) Envelope() string { return r.envelope }

func (r Response) Dialog() (cards.Card, bool) {
	if r.dialog == nil {
		return cards.Card{}, false
	}
	return *r.dialog, true
}

func (r Response) Status() (ActionStatus, bool) {
	if r.status == nil {
		return ActionStatus{}, false
	}
	return *r.status, true
}

type wireMessage struct {
	Text           *string             `json:"text,omitempty"`
	CardsV2        []CardWithID        `json:"cardsV2,omitempty"`
	ActionResponse *wireActionResponse `json:"actionResponse,omitempty"`
}

type wireActionResponse struct {
	Type         string            `json:"type"`
	DialogAction *wireDialogAction `json:"dialogAction,omitempty"`
}

type wireDialogAction struct {
	Dialog *wireDialog `json:"dialog,omitempty"`
	// ActionStatus is the string "OK" for a close ack and an object otherwise.
	ActionStatus any `json:"actionStatus,omitempty"`
}

type wireDialog struct {
	Body cards.Card `json:"body"`
}

func (r Response) wire() wireMessage {
	switch r.kind {
	case KindText:
		return wireMessage{Text: r.text}
	case KindMessage:
		msg := wireMessage{Text: r.text, CardsV2: r.cards}
		if r.envelope != "" {
			msg.ActionResponse = &wireActionResponse{Type: r.envelope}
		}
		return msg
	case KindDialogOpen:
		return wireMessage{ActionResponse: &wireActionResponse{
			Type:         ResponseDialog,
			DialogAction: &wireDialogAction{Dialog: &wireDialog{Body: *r.dialog}},
		}}
	case KindDialogStatus:
		action := &wireDialogAction{ActionStatus: r.status}
		if r.dialog != nil {
			action.Dialog = &wireDialog{Body: *r.dialog}
		}
		return wireMessage{ActionResponse: &wireActionResponse{Type: ResponseDialog, DialogAction: action}}
	case KindDialogClose:
		return wireMessage{ActionResponse: &wireActionResponse{
			Type:         ResponseDialog,
			DialogAction: &wireDialogAction{ActionStatus: StatusOK},
		}}
	}
	return wireMessage{}
}

func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}
