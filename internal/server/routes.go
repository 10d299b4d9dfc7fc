package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"storyline/internal/domain"
	"storyline/internal/engine"
)

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSpaces(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-spaces",
		Method:      http.MethodGet,
		Path:        "/spaces",
		Summary:     "List spaces the app was added to",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []SpaceResponse `json:"body"`
	}, error) {
		spaces, err := e.ListSpaces(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]SpaceResponse, 0, len(spaces))
		for _, s := range spaces {
			out = append(out, spaceResponse(s))
		}
		return &struct {
			Body []SpaceResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerStories(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-stories",
		Method:      http.MethodGet,
		Path:        "/spaces/{space}/stories",
		Summary:     "List user stories of a space",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Space    string `path:"space" doc:"Space id, with or without the spaces/ prefix"`
		Assignee string `query:"assignee"`
		Status   string `query:"status" enum:"OPEN,STARTED,COMPLETED"`
	}) (*struct {
		Body storyList `json:"body"`
	}, error) {
		if _, err := e.GetSpace(ctx, input.Space); err != nil {
			return nil, handleError(err)
		}
		stories, err := e.FindUserStories(ctx, input.Space, input.Assignee, domain.Status(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body storyList `json:"body"`
		}{Body: storyList{Items: mapStories(stories)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "create-story",
		Method:      http.MethodPost,
		Path:        "/spaces/{space}/stories",
		Summary:     "Create a user story",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Space string `path:"space" doc:"Space id, with or without the spaces/ prefix"`
		Body  CreateStoryRequest
	}) (*struct {
		Body StoryResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateUserStory(ctx, input.Space, input.Body.Title, input.Body.Description, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StoryResponse `json:"body"`
		}{Body: storyResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-story",
		Method:      http.MethodGet,
		Path:        "/spaces/{space}/stories/{id}",
		Summary:     "Get a user story",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Space string `path:"space" doc:"Space id, with or without the spaces/ prefix"`
		ID    string `path:"id"`
	}) (*struct {
		Body StoryResponse `json:"body"`
	}, error) {
		s, err := e.GetUserStory(ctx, input.Space, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StoryResponse `json:"body"`
		}{Body: storyResponse(s)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events after a cursor, oldest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Space string `query:"space"`
		After int64  `query:"after" minimum:"0"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		items, err := e.Repo.EventsAfter(ctx, limit+1, input.After, domain.SpaceID(input.Space))
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{ActorID: p.ActorID, Source: p.Source}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
