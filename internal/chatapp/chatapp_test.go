package chatapp_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"storyline/internal/cards"
	"storyline/internal/chat"
	"storyline/internal/chatapp"
	"storyline/internal/config"
	"storyline/internal/db"
	"storyline/internal/domain"
	"storyline/internal/engine"
	"storyline/internal/logging"
	"storyline/internal/migrate"
	"storyline/internal/mocks/mock_textgen"
	"storyline/internal/textgen"
)

const spaceName = "spaces/AAA"

type fixture struct {
	ctx    context.Context
	engine engine.Engine
	gen    *mock_textgen.MockGenerator
	app    *chatapp.App
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn, err := db.Open(db.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	require.NoError(t, migrate.Migrate(ctx, conn.DB))
	eng := engine.New(conn, config.Default())
	gen := mock_textgen.NewMockGenerator(gomock.NewController(t))
	app := chatapp.New(eng, eng, eng, textgen.NewService(gen), logging.NewTestLogger())
	return fixture{ctx: ctx, engine: eng, gen: gen, app: app}
}

func (f fixture) story(t *testing.T, title string) domain.UserStory {
	t.Helper()
	s, err := f.engine.CreateUserStory(f.ctx, spaceName, title, "", "users/1")
	require.NoError(t, err)
	return s
}

func baseEvent(evtType chat.EventType) chat.Event {
	return chat.Event{
		Type:  evtType,
		Space: chat.Space{Name: spaceName, DisplayName: "Team"},
		User:  chat.User{Name: "users/1", DisplayName: "Ada", AvatarURL: "https://a/ada.png"},
	}
}

func slash(id, arg string) chat.Event {
	evt := baseEvent(chat.EventMessage)
	evt.Message = &chat.Message{ArgumentText: arg, SlashCommand: &chat.SlashCommand{CommandID: json.Number(id)}}
	return evt
}

func click(function string, params map[string]string, form map[string]string) chat.Event {
	evt := baseEvent(chat.EventCardClicked)
	evt.Common = &chat.Common{InvokedFunction: function, Parameters: params, FormInputs: map[string]chat.FormInput{}}
	for k, v := range form {
		evt.Common.FormInputs[k] = chat.FormInput{StringInputs: &chat.StringInputs{Value: []string{v}}}
	}
	return evt
}

func asJSON(t *testing.T, r chat.Response) string {
	t.Helper()
	data, err := json.Marshal(r)
	require.NoError(t, err)
	return string(data)
}

func TestAddedAndRemovedFromSpace(t *testing.T) {
	f := newFixture(t)
	resp, err := f.app.Handle(f.ctx, baseEvent(chat.EventAddedToSpace))
	require.NoError(t, err)
	text, _ := resp.TextValue()
	require.Equal(t, "Thank you for adding the Project Management app. Message the app for a list of available commands.", text)
	sp, err := f.engine.GetSpace(f.ctx, spaceName)
	require.NoError(t, err)
	require.Equal(t, "Team", sp.DisplayName)

	f.story(t, "gone soon")
	resp, err = f.app.Handle(f.ctx, baseEvent(chat.EventRemovedFromSpace))
	require.NoError(t, err)
	require.Equal(t, chat.KindEmpty, resp.Kind())
	stories, err := f.engine.ListUserStories(f.ctx, spaceName)
	require.NoError(t, err)
	require.Empty(t, stories)
}

func TestCreateUserStoryCommand(t *testing.T) {
	f := newFixture(t)
	resp, err := f.app.Handle(f.ctx, slash("1", "   "))
	require.NoError(t, err)
	text, _ := resp.TextValue()
	require.Equal(t, "Title is required. Include a title in the command: */createUserStory* _title_", text)

	f.gen.EXPECT().Generate(gomock.Any(), "Generate a description for a user story with the following title:\n\nLogin").
		Return("Users can log in.", nil)
	resp, err = f.app.Handle(f.ctx, slash("1", " Login "))
	require.NoError(t, err)
	require.Equal(t, chat.KindMessage, resp.Kind())
	text, _ = resp.TextValue()
	require.Equal(t, "<users/1> created a user story.", text)
	card := resp.Cards()[0]
	require.Equal(t, cards.UserStoryCardID, card.CardID)
	require.Equal(t, "Login", card.Card.Header.Title)
	require.Equal(t, "Users can log in.", card.Card.Sections[0].Widgets[0].TextParagraph.Text)
}

func TestCreateUserStoryGenerationFailurePropagates(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("quota exceeded")
	f.gen.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", boom)
	_, err := f.app.Handle(f.ctx, slash("1", "Login"))
	require.ErrorIs(t, err, boom)
}

func TestMessageRouting(t *testing.T) {
	f := newFixture(t)
	s := f.story(t, "Mine")
	_, err := f.engine.AssignUserStory(f.ctx, spaceName, s.ID, "users/1", "users/1")
	require.NoError(t, err)
	done := f.story(t, "Done")
	_, err = f.engine.AssignUserStory(f.ctx, spaceName, done.ID, "users/1", "users/1")
	require.NoError(t, err)
	_, err = f.engine.CompleteUserStory(f.ctx, spaceName, done.ID, "users/1")
	require.NoError(t, err)

	mention := baseEvent(chat.EventMessage)
	mention.Message = &chat.Message{ArgumentText: "  User Stories "}
	resp, err := f.app.Handle(f.ctx, mention)
	require.NoError(t, err)
	list := resp.Cards()[0]
	require.Equal(t, cards.UserStoriesCardID, list.CardID)
	require.Equal(t, "User Stories assigned to Ada", list.Card.Header.Title)
	require.Len(t, list.Card.Sections, 1, "completed stories are not listed")

	mention.Message.ArgumentText = "hello"
	resp, err = f.app.Handle(f.ctx, mention)
	require.NoError(t, err)
	require.Equal(t, cards.HelpCardID, resp.Cards()[0].CardID)

	resp, err = f.app.Handle(f.ctx, slash("9", ""))
	require.NoError(t, err)
	text, _ := resp.TextValue()
	require.Equal(t, "⚠️ Unrecognized command.", text)
}

func TestUserStoryCommand(t *testing.T) {
	f := newFixture(t)
	resp, err := f.app.Handle(f.ctx, slash("3", ""))
	require.NoError(t, err)
	text, _ := resp.TextValue()
	require.Equal(t, "User story ID is required. Include an ID in the command: */userStory* _id_", text)

	resp, err = f.app.Handle(f.ctx, slash("3", "nope"))
	require.NoError(t, err)
	text, _ = resp.TextValue()
	require.Equal(t, "⚠️ User story nope not found.", text)

	s := f.story(t, "Visible")
	_, err = f.engine.AssignUserStory(f.ctx, spaceName, s.ID, "users/77", "users/1")
	require.NoError(t, err)
	resp, err = f.app.Handle(f.ctx, slash("3", s.ID))
	require.NoError(t, err)
	card := resp.Cards()[0].Card
	require.Equal(t, "Visible", card.Header.Title)
	// assignee without a stored profile
	require.Equal(t, "Unknown user", card.Sections[0].Widgets[1].DecoratedText.Text)
}

func TestManageAndCleanupCommands(t *testing.T) {
	f := newFixture(t)
	f.story(t, "One")
	f.story(t, "Two")
	resp, err := f.app.Handle(f.ctx, slash("4", ""))
	require.NoError(t, err)
	require.Equal(t, chat.KindDialogOpen, resp.Kind())
	body, ok := resp.Dialog()
	require.True(t, ok)
	require.Nil(t, body.Header)
	require.Len(t, body.Sections, 2)

	resp, err = f.app.Handle(f.ctx, slash("5", ""))
	require.NoError(t, err)
	text, _ := resp.TextValue()
	require.Equal(t, "<users/1> deleted all the user stories.", text)
	stories, err := f.engine.ListUserStories(f.ctx, spaceName)
	require.NoError(t, err)
	require.Empty(t, stories)
}

func TestCancelDialog(t *testing.T) {
	f := newFixture(t)
	evt := click("saveUserStory", nil, nil)
	evt.IsDialogEvent = true
	evt.DialogEventType = chat.DialogCancel
	resp, err := f.app.Handle(f.ctx, evt)
	require.NoError(t, err)
	require.JSONEq(t, `{"actionResponse":{"type":"DIALOG","dialogAction":{"actionStatus":"OK"}}}`, asJSON(t, resp))
}

func TestUnrecognizedAction(t *testing.T) {
	f := newFixture(t)
	resp, err := f.app.Handle(f.ctx, click("launchRocket", map[string]string{"cardType": "single_message"}, nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"text":"⚠️ Unrecognized action."}`, asJSON(t, resp))

	resp, err = f.app.Handle(f.ctx, click("launchRocket", map[string]string{"cardType": "single_dialog"}, nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"actionResponse":{"type":"DIALOG","dialogAction":{"actionStatus":{"statusCode":"INVALID_ARGUMENT","userFacingMessage":"⚠️ Unrecognized action."}}}}`, asJSON(t, resp))

	require.Equal(t, chatapp.ActionUnknown, chatapp.ParseAction("EditUserStory"))
	require.Equal(t, chatapp.ActionEdit, chatapp.ParseAction("editUserStory"))
	require.Equal(t, "editUserStory", chatapp.ActionEdit.String())
	require.Equal(t, "unknown", chatapp.ActionUnknown.String())
}

func TestEditMissingStory(t *testing.T) {
	f := newFixture(t)
	evt := click("editUserStory", map[string]string{"id": "missing"}, nil)
	evt.IsDialogEvent = true
	resp, err := f.app.Handle(f.ctx, evt)
	require.NoError(t, err)
	require.JSONEq(t, `{"actionResponse":{"type":"DIALOG","dialogAction":{"actionStatus":{"statusCode":"NOT_FOUND","userFacingMessage":"User story not found."}}}}`, asJSON(t, resp))

	evt.IsDialogEvent = false
	resp, err = f.app.Handle(f.ctx, evt)
	require.NoError(t, err)
	require.JSONEq(t, `{"text":"⚠️ User story not found."}`, asJSON(t, resp))
}

func TestEditOpensDialog(t *testing.T) {
	f := newFixture(t)
	s := f.story(t, "Editable")
	resp, err := f.app.Handle(f.ctx, click("editUserStory", map[string]string{"id": s.ID}, nil))
	require.NoError(t, err)
	body, ok := resp.Dialog()
	require.True(t, ok)
	require.Equal(t, "Editable", body.Header.Title)
	require.Equal(t, "title", body.Sections[0].Widgets[0].TextInput.Name)
}

func TestAssignInListDialogReturnsManageDialog(t *testing.T) {
	f := newFixture(t)
	s := f.story(t, "Assign")
	evt := click("assignUserStory", map[string]string{"id": s.ID, "cardType": "list_dialog"}, nil)
	evt.IsDialogEvent = true
	resp, err := f.app.Handle(f.ctx, evt)
	require.NoError(t, err)

	manage, err := f.app.Handle(f.ctx, slash("4", ""))
	require.NoError(t, err)
	require.JSONEq(t, asJSON(t, manage), asJSON(t, resp))
	body, _ := resp.Dialog()
	require.Equal(t, "Ada", body.Sections[0].Widgets[3].DecoratedText.Text)

	u, err := f.engine.GetUser(f.ctx, spaceName, "users/1")
	require.NoError(t, err)
	require.Equal(t, "https://a/ada.png", u.AvatarURL)
}

func TestStatusActionsInSingleMessage(t *testing.T) {
	f := newFixture(t)
	s := f.story(t, "Flow")
	resp, err := f.app.Handle(f.ctx, click("startUserStory", map[string]string{"id": s.ID, "cardType": "single_message"}, nil))
	require.NoError(t, err)
	require.Equal(t, chat.ResponseUpdateMessage, resp.Envelope())
	text, _ := resp.TextValue()
	require.Equal(t, "User story updated.", text)

	resp, err = f.app.Handle(f.ctx, click("startUserStory", map[string]string{"id": s.ID, "cardType": "single_message"}, nil))
	require.NoError(t, err)
	text, _ = resp.TextValue()
	require.Equal(t, "⚠️ User story is already started or completed.", text)

	resp, err = f.app.Handle(f.ctx, click("completeUserStory", map[string]string{"id": s.ID}, nil))
	require.NoError(t, err)
	require.Equal(t, chat.KindMessage, resp.Kind())
	require.Equal(t, "", resp.Envelope(), "legacy context posts without an envelope")

	resp, err = f.app.Handle(f.ctx, click("refreshUserStory", map[string]string{"id": s.ID, "cardType": "single_message"}, nil))
	require.NoError(t, err)
	require.Equal(t, chat.ResponseUpdateMessage, resp.Envelope())
	_, hasText := resp.TextValue()
	require.False(t, hasText)
	require.Equal(t, cards.StatusIcon(domain.StatusCompleted), resp.Cards()[0].Card.Header.ImageURL)
}

func TestAssignInListMessageUpdatesList(t *testing.T) {
	f := newFixture(t)
	s := f.story(t, "Listed")
	resp, err := f.app.Handle(f.ctx, click("assignUserStory", map[string]string{"id": s.ID, "cardType": "list_message"}, nil))
	require.NoError(t, err)
	require.Equal(t, chat.ResponseUpdateMessage, resp.Envelope())
	require.Equal(t, cards.UserStoriesCardID, resp.Cards()[0].CardID)
	require.Len(t, resp.Cards()[0].Card.Sections, 1)
}

func TestSaveInSingleDialog(t *testing.T) {
	f := newFixture(t)
	s := f.story(t, "Before")
	evt := click("saveUserStory", map[string]string{"id": s.ID, "cardType": "single_dialog"}, map[string]string{
		"title": "After", "description": "Details", "status": "STARTED", "priority": "High", "size": "",
	})
	evt.IsDialogEvent = true
	resp, err := f.app.Handle(f.ctx, evt)
	require.NoError(t, err)
	require.Equal(t, chat.KindDialogStatus, resp.Kind())
	status, _ := resp.Status()
	require.Equal(t, chat.ActionStatus{StatusCode: "OK", UserFacingMessage: "Saved."}, status)
	body, _ := resp.Dialog()
	require.Equal(t, "Saved.", body.Sections[0].Widgets[0].DecoratedText.Text)

	got, err := f.engine.GetUserStory(f.ctx, spaceName, s.ID)
	require.NoError(t, err)
	require.Equal(t, "After", got.Title)
	require.Equal(t, domain.StatusStarted, got.Status)
	require.Equal(t, "High", got.PriorityText())
	require.Nil(t, got.Size)

	evt.Common.FormInputs["status"] = chat.FormInput{StringInputs: &chat.StringInputs{Value: []string{"OPEN"}}}
	resp, err = f.app.Handle(f.ctx, evt)
	require.NoError(t, err)
	require.JSONEq(t, `{"actionResponse":{"type":"DIALOG","dialogAction":{"actionStatus":{"statusCode":"INVALID_ARGUMENT","userFacingMessage":"Invalid status transition."}}}}`, asJSON(t, resp))
}

func TestSaveKeepsFieldsMissingFromForm(t *testing.T) {
	f := newFixture(t)
	s, err := f.engine.CreateUserStory(f.ctx, spaceName, "Keep me", "Keep this too", "users/1")
	require.NoError(t, err)
	evt := click("saveUserStory", map[string]string{"id": s.ID, "cardType": "single_dialog"}, map[string]string{
		"status": "STARTED", "priority": "Low",
	})
	evt.IsDialogEvent = true
	resp, err := f.app.Handle(f.ctx, evt)
	require.NoError(t, err)
	require.Equal(t, chat.KindDialogStatus, resp.Kind())

	got, err := f.engine.GetUserStory(f.ctx, spaceName, s.ID)
	require.NoError(t, err)
	require.Equal(t, "Keep me", got.Title)
	require.Equal(t, "Keep this too", got.Description)
	require.Equal(t, domain.StatusStarted, got.Status)
	require.Equal(t, "Low", got.PriorityText())
}

func TestGenerateWithBlankTitleSkipsTextGeneration(t *testing.T) {
	f := newFixture(t)
	// no expectations: any Generate call fails the test
	evt := click("generateUserStoryDescription", map[string]string{"id": "s1", "cardType": "single_dialog"}, map[string]string{
		"title": "  ", "description": "old text", "status": "OPEN",
	})
	evt.IsDialogEvent = true
	resp, err := f.app.Handle(f.ctx, evt)
	require.NoError(t, err)
	body, ok := resp.Dialog()
	require.True(t, ok)
	require.Len(t, body.Sections, 2, "an unsaved form has no saved notice")
	require.Equal(t, "", body.Sections[0].Widgets[1].TextInput.Value)
}

func TestExpandAndCorrectUseFormValues(t *testing.T) {
	f := newFixture(t)
	f.gen.EXPECT().Generate(gomock.Any(), "Expand the following user story description:\n\nshort").Return("much longer", nil)
	evt := click("expandUserStoryDescription", map[string]string{"id": "unsaved", "cardType": "single_dialog", "assignee": "9"}, map[string]string{
		"title": "Draft", "description": "short", "status": "OPEN", "size": "Small",
	})
	evt.IsDialogEvent = true
	resp, err := f.app.Handle(f.ctx, evt)
	require.NoError(t, err)
	body, _ := resp.Dialog()
	form := body.Sections[0].Widgets
	require.Equal(t, "Draft", form[0].TextInput.Value)
	require.Equal(t, "much longer", form[1].TextInput.Value)
	require.Equal(t, "Unknown user", form[5].DecoratedText.Text)

	// blank description: correct grammar is skipped
	grammar := click("correctUserStoryDescriptionGrammar", map[string]string{"id": "unsaved", "cardType": "single_dialog"}, map[string]string{
		"title": "Draft", "description": " ",
	})
	resp, err = f.app.Handle(f.ctx, grammar)
	require.NoError(t, err)
	body, _ = resp.Dialog()
	require.Equal(t, " ", body.Sections[0].Widgets[1].TextInput.Value)

	stories, err := f.engine.ListUserStories(f.ctx, spaceName)
	require.NoError(t, err)
	require.Empty(t, stories, "text actions never write")
}
