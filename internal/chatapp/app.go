// Package chatapp turns chat events into user story operations and replies.
package chatapp

import (
	"context"
	"fmt"
	"strings"

	"storyline/internal/cards"
	"storyline/internal/chat"
	"storyline/internal/domain"
	"storyline/internal/engine"
	"storyline/internal/logging"
)

// Slash command ids as registered with the chat platform.
const (
	CommandCreateUserStory    = 1
	CommandMyUserStories      = 2
	CommandUserStory          = 3
	CommandManageUserStories  = 4
	CommandCleanupUserStories = 5
)

const (
	welcomeText = "Thank you for adding the Project Management app. Message the app for a list of available commands."
	warning     = "⚠️ "
)

type StoryService interface {
	CreateUserStory(ctx context.Context, spaceName, title, description, actorID string) (domain.UserStory, error)
	GetUserStory(ctx context.Context, spaceName, id string) (domain.UserStory, error)
	UpdateUserStory(ctx context.Context, spaceName, id string, u engine.UserStoryUpdate, actorID string) (domain.UserStory, error)
	AssignUserStory(ctx context.Context, spaceName, id, userName, actorID string) (domain.UserStory, error)
	StartUserStory(ctx context.Context, spaceName, id, actorID string) (domain.UserStory, error)
	CompleteUserStory(ctx context.Context, spaceName, id, actorID string) (domain.UserStory, error)
	ListUserStories(ctx context.Context, spaceName string) ([]domain.UserStory, error)
	ListUserStoriesByUser(ctx context.Context, spaceName, userName string) ([]domain.UserStory, error)
	CleanupUserStories(ctx context.Context, spaceName, actorID string) error
}

type UserService interface {
	CreateOrUpdateUser(ctx context.Context, spaceName string, u domain.User) (domain.User, error)
	GetUser(ctx context.Context, spaceName, userName string) (domain.User, error)
	GetUsers(ctx context.Context, spaceName string, userNames []string) (map[string]domain.User, error)
}

type SpaceService interface {
	CreateSpace(ctx context.Context, spaceName, displayName, actorID string) (domain.Space, error)
	DeleteSpace(ctx context.Context, spaceName, actorID string) error
}

// TextGenerator writes and rewrites story descriptions.
type TextGenerator interface {
	GenerateDescription(ctx context.Context, title string) (string, error)
	ExpandDescription(ctx context.Context, description string) (string, error)
	CorrectDescription(ctx context.Context, description string) (string, error)
}

type App struct {
	Stories StoryService
	Users   UserService
	Spaces  SpaceService
	Text    TextGenerator
	Log     logging.Logger
}

func New(stories StoryService, users UserService, spaces SpaceService, text TextGenerator, log logging.Logger) *App {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &App{Stories: stories, Users: users, Spaces: spaces, Text: text, Log: log}
}

// Handle dispatches an event on its type. Errors returned here are not
// domain errors and should fail the request.
func (a *App) Handle(ctx context.Context, evt chat.Event) (chat.Response, error) {
	switch evt.Type {
	case chat.EventAddedToSpace:
		return a.handleAddedToSpace(ctx, evt)
	case chat.EventRemovedFromSpace:
		return a.handleRemovedFromSpace(ctx, evt)
	case chat.EventCardClicked:
		return a.HandleAction(ctx, evt)
	case chat.EventMessage:
		if evt.IsSlashCommand() {
			return a.handleSlashCommand(ctx, evt)
		}
		switch strings.ToLower(strings.TrimSpace(evt.ArgumentText())) {
		case "user stories", "userstories":
			return a.myUserStories(ctx, evt)
		}
		return a.help(), nil
	}
	return chat.Empty(), nil
}

func (a *App) handleAddedToSpace(ctx context.Context, evt chat.Event) (chat.Response, error) {
	if _, err := a.Spaces.CreateSpace(ctx, evt.Space.Name, evt.Space.DisplayName, evt.User.Name); err != nil {
		return chat.Response{}, err
	}
	return chat.Text(welcomeText), nil
}

func (a *App) handleRemovedFromSpace(ctx context.Context, evt chat.Event) (chat.Response, error) {
	if err := a.Spaces.DeleteSpace(ctx, evt.Space.Name, evt.User.Name); err != nil {
		return chat.Response{}, err
	}
	return chat.Empty(), nil
}

func (a *App) handleSlashCommand(ctx context.Context, evt chat.Event) (chat.Response, error) {
	switch evt.SlashCommandID() {
	case CommandCreateUserStory:
		return a.createUserStory(ctx, evt)
	case CommandMyUserStories:
		return a.myUserStories(ctx, evt)
	case CommandUserStory:
		return a.userStory(ctx, evt)
	case CommandManageUserStories:
		return a.manageUserStories(ctx, evt)
	case CommandCleanupUserStories:
		return a.cleanupUserStories(ctx, evt)
	}
	return chat.Text(warning + "Unrecognized command."), nil
}

func (a *App) createUserStory(ctx context.Context, evt chat.Event) (chat.Response, error) {
	title := strings.TrimSpace(evt.ArgumentText())
	if title == "" {
		return chat.Text("Title is required. Include a title in the command: */createUserStory* _title_"), nil
	}
	description, err := a.Text.GenerateDescription(ctx, title)
	if err != nil {
		return chat.Response{}, err
	}
	s, err := a.Stories.CreateUserStory(ctx, evt.Space.Name, title, description, evt.User.Name)
	if err != nil {
		return chat.Response{}, err
	}
	return chat.CardMessage(fmt.Sprintf("<%s> created a user story.", evt.User.Name), cards.UserStoryCardID, cards.UserStoryCard(s, nil)), nil
}

// myUserStories lists the caller's unfinished stories. The caller's own
// profile comes from the event, so no user lookup is needed.
func (a *App) myUserStories(ctx context.Context, evt chat.Event) (chat.Response, error) {
	stories, err := a.Stories.ListUserStoriesByUser(ctx, evt.Space.Name, evt.User.Name)
	if err != nil {
		return chat.Response{}, err
	}
	open := make([]domain.UserStory, 0, len(stories))
	for _, s := range stories {
		if s.Status != domain.StatusCompleted {
			open = append(open, s)
		}
	}
	caller := eventUser(evt)
	users := map[string]domain.User{caller.ID: caller}
	title := "User Stories assigned to " + evt.User.DisplayName
	return chat.CardMessage("", cards.UserStoriesCardID, cards.UserStoryListCard(title, open, users, false)), nil
}

func (a *App) userStory(ctx context.Context, evt chat.Event) (chat.Response, error) {
	id := strings.TrimSpace(evt.ArgumentText())
	if id == "" {
		return chat.Text("User story ID is required. Include an ID in the command: */userStory* _id_"), nil
	}
	s, err := a.Stories.GetUserStory(ctx, evt.Space.Name, id)
	if err != nil {
		if de, ok := engine.AsDomainError(err); ok && de.StatusCode() == engine.StatusNotFound {
			return chat.Text(fmt.Sprintf("%sUser story %s not found.", warning, id)), nil
		}
		return chat.Response{}, err
	}
	return chat.CardMessage("", cards.UserStoryCardID, cards.UserStoryCard(s, a.lookupUser(ctx, evt.Space.Name, s.AssigneeID()))), nil
}

func (a *App) manageUserStories(ctx context.Context, evt chat.Event) (chat.Response, error) {
	stories, err := a.Stories.ListUserStories(ctx, evt.Space.Name)
	if err != nil {
		return chat.Response{}, err
	}
	var assignees []string
	for _, s := range stories {
		if id := s.AssigneeID(); id != "" {
			assignees = append(assignees, id)
		}
	}
	users, err := a.Users.GetUsers(ctx, evt.Space.Name, assignees)
	if err != nil {
		return chat.Response{}, err
	}
	return chat.DialogOpen(cards.UserStoryListCard("User Stories", stories, users, true)), nil
}

func (a *App) cleanupUserStories(ctx context.Context, evt chat.Event) (chat.Response, error) {
	if err := a.Stories.CleanupUserStories(ctx, evt.Space.Name, evt.User.Name); err != nil {
		return chat.Response{}, err
	}
	return chat.Text(fmt.Sprintf("<%s> deleted all the user stories.", evt.User.Name)), nil
}

func (a *App) help() chat.Response {
	return chat.CardMessage("", cards.HelpCardID, cards.HelpCard())
}

// lookupUser resolves an assignee for display. Any failure renders as an
// unknown user rather than failing the request.
func (a *App) lookupUser(ctx context.Context, spaceName, assignee string) *domain.User {
	if assignee == "" {
		return nil
	}
	u, err := a.Users.GetUser(ctx, spaceName, assignee)
	if err != nil {
		if _, ok := engine.AsDomainError(err); !ok {
			a.Log.WithError(err).Warnw("user lookup failed", "space", spaceName, "user", assignee)
		}
		return nil
	}
	return &u
}

func eventUser(evt chat.Event) domain.User {
	return domain.User{
		ID:          domain.UserID(evt.User.Name),
		DisplayName: evt.User.DisplayName,
		AvatarURL:   evt.User.AvatarURL,
	}
}
