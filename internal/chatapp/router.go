package chatapp

import (
	"context"
	"strings"

	"storyline/internal/cards"
	"storyline/internal/chat"
	"storyline/internal/domain"
	"storyline/internal/engine"
)

const unrecognizedAction = warning + "Unrecognized action."

// HandleAction runs a card action. Domain errors become a dialog status or a
// warning text depending on where the click came from; any other error is
// returned to the caller.
func (a *App) HandleAction(ctx context.Context, evt chat.Event) (chat.Response, error) {
	if evt.IsDialogCancel() {
		return chat.DialogClose(), nil
	}
	resp, err := a.dispatch(ctx, evt)
	if err == nil {
		return resp, nil
	}
	de, ok := engine.AsDomainError(err)
	if !ok {
		return chat.Response{}, err
	}
	a.Log.Debugw("action rejected", "action", ParseAction(evt.InvokedFunction()).String(), "space", evt.Space.Name, "status", de.StatusCode(), "reason", de.UserFacingMessage())
	if evt.IsDialogEvent {
		return chat.DialogStatus(de.StatusCode(), de.UserFacingMessage()), nil
	}
	return chat.Text(warning + de.UserFacingMessage()), nil
}

func (a *App) dispatch(ctx context.Context, evt chat.Event) (chat.Response, error) {
	action := ParseAction(evt.InvokedFunction())
	switch action {
	case ActionMyUserStories:
		return a.myUserStories(ctx, evt)
	case ActionManageUserStories, ActionCancelEdit:
		return a.manageUserStories(ctx, evt)
	case ActionCleanupUserStories:
		return a.cleanupUserStories(ctx, evt)
	case ActionEdit:
		return a.editUserStory(ctx, evt)
	case ActionAssign:
		return a.assignUserStory(ctx, evt)
	case ActionStart:
		return a.changeStatus(ctx, evt, a.Stories.StartUserStory)
	case ActionComplete:
		return a.changeStatus(ctx, evt, a.Stories.CompleteUserStory)
	case ActionSave:
		return a.saveUserStory(ctx, evt)
	case ActionRefresh:
		return a.refreshUserStory(ctx, evt)
	case ActionGenerateDescription:
		return a.transformDescription(ctx, evt, aiGenerate)
	case ActionExpandDescription:
		return a.transformDescription(ctx, evt, aiExpand)
	case ActionCorrectGrammar:
		return a.transformDescription(ctx, evt, aiGrammar)
	case ActionUnknown:
	}
	if cards.CardType(evt.Param("cardType")).IsDialog() {
		return chat.DialogStatus(engine.StatusInvalidArgument, unrecognizedAction), nil
	}
	return chat.Text(unrecognizedAction), nil
}

func (a *App) editUserStory(ctx context.Context, evt chat.Event) (chat.Response, error) {
	s, err := a.Stories.GetUserStory(ctx, evt.Space.Name, evt.Param("id"))
	if err != nil {
		return chat.Response{}, err
	}
	return chat.DialogOpen(cards.EditUserStoryCard(s, a.lookupUser(ctx, evt.Space.Name, s.AssigneeID()), false)), nil
}

// assignUserStory records the caller's profile so cards can show it, then
// assigns the story to the caller.
func (a *App) assignUserStory(ctx context.Context, evt chat.Event) (chat.Response, error) {
	user, err := a.Users.CreateOrUpdateUser(ctx, evt.Space.Name, eventUser(evt))
	if err != nil {
		return chat.Response{}, err
	}
	s, err := a.Stories.AssignUserStory(ctx, evt.Space.Name, evt.Param("id"), evt.User.Name, evt.User.Name)
	if err != nil {
		return chat.Response{}, err
	}
	return a.buildResponse(ctx, evt, s, true, &user)
}

type statusChange func(ctx context.Context, spaceName, id, actorID string) (domain.UserStory, error)

func (a *App) changeStatus(ctx context.Context, evt chat.Event, change statusChange) (chat.Response, error) {
	s, err := change(ctx, evt.Space.Name, evt.Param("id"), evt.User.Name)
	if err != nil {
		return chat.Response{}, err
	}
	return a.buildResponse(ctx, evt, s, true, a.lookupUser(ctx, evt.Space.Name, s.AssigneeID()))
}

// formUpdate reads the edit dialog fields. Title and description are only
// written when the form carried them. An empty priority or size clears the
// value; an empty status leaves it unchanged.
func formUpdate(evt chat.Event) engine.UserStoryUpdate {
	var u engine.UserStoryUpdate
	if evt.HasFormValue("title") {
		title := evt.FormValue("title")
		u.Title = &title
	}
	if evt.HasFormValue("description") {
		description := evt.FormValue("description")
		u.Description = &description
	}
	if v := evt.FormValue("status"); v != "" {
		status := domain.Status(v)
		u.Status = &status
	}
	if v := evt.FormValue("priority"); v != "" {
		p := domain.Priority(v)
		u.Priority = &p
	} else {
		u.ClearPriority = true
	}
	if v := evt.FormValue("size"); v != "" {
		sz := domain.Size(v)
		u.Size = &sz
	} else {
		u.ClearSize = true
	}
	return u
}

func (a *App) saveUserStory(ctx context.Context, evt chat.Event) (chat.Response, error) {
	s, err := a.Stories.UpdateUserStory(ctx, evt.Space.Name, evt.Param("id"), formUpdate(evt), evt.User.Name)
	if err != nil {
		return chat.Response{}, err
	}
	return a.buildResponse(ctx, evt, s, true, a.lookupUser(ctx, evt.Space.Name, s.AssigneeID()))
}

func (a *App) refreshUserStory(ctx context.Context, evt chat.Event) (chat.Response, error) {
	s, err := a.Stories.GetUserStory(ctx, evt.Space.Name, evt.Param("id"))
	if err != nil {
		return chat.Response{}, err
	}
	return chat.UpdateMessage("", cards.UserStoryCardID, cards.UserStoryCard(s, a.lookupUser(ctx, evt.Space.Name, s.AssigneeID()))), nil
}

// transformDescription rewrites the description shown in the edit dialog.
// It works on the unsaved form values and never reads or writes the store.
func (a *App) transformDescription(ctx context.Context, evt chat.Event, action aiAction) (chat.Response, error) {
	title := evt.FormValue("title")
	description := evt.FormValue("description")
	var err error
	switch action {
	case aiGenerate:
		if strings.TrimSpace(title) == "" {
			description = ""
		} else {
			description, err = a.Text.GenerateDescription(ctx, title)
		}
	case aiExpand:
		if strings.TrimSpace(description) != "" {
			description, err = a.Text.ExpandDescription(ctx, description)
		}
	case aiGrammar:
		if strings.TrimSpace(description) != "" {
			description, err = a.Text.CorrectDescription(ctx, description)
		}
	}
	if err != nil {
		return chat.Response{}, err
	}
	s := domain.UserStory{
		SpaceID:     domain.SpaceID(evt.Space.Name),
		ID:          evt.Param("id"),
		Title:       title,
		Description: description,
		Status:      domain.Status(evt.FormValue("status")),
	}
	if v := evt.FormValue("priority"); v != "" {
		p := domain.Priority(v)
		s.Priority = &p
	}
	if v := evt.FormValue("size"); v != "" {
		sz := domain.Size(v)
		s.Size = &sz
	}
	if assignee := evt.Param("assignee"); assignee != "" {
		s.Assignee = &assignee
	}
	return a.buildResponse(ctx, evt, s, false, a.lookupUser(ctx, evt.Space.Name, s.AssigneeID()))
}

// buildResponse renders the story for the presentation context the action
// came from.
func (a *App) buildResponse(ctx context.Context, evt chat.Event, s domain.UserStory, updated bool, user *domain.User) (chat.Response, error) {
	text := ""
	if updated {
		text = "User story updated."
	}
	switch cards.CardType(evt.Param("cardType")) {
	case cards.SingleMessage:
		return chat.UpdateMessage(text, cards.UserStoryCardID, cards.UserStoryCard(s, user)), nil
	case cards.ListMessage:
		resp, err := a.myUserStories(ctx, evt)
		if err != nil {
			return chat.Response{}, err
		}
		return resp.AsUpdate(), nil
	case cards.SingleDialog:
		return chat.DialogStatusWithBody(chat.StatusOK, "Saved.", cards.EditUserStoryCard(s, user, updated)), nil
	case cards.ListDialog:
		return a.manageUserStories(ctx, evt)
	}
	return chat.CardMessage(text, cards.UserStoryCardID, cards.UserStoryCard(s, user)), nil
}
