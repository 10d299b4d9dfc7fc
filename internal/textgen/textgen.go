// Package textgen turns prompts into generated text for user story descriptions.
package textgen

import (
	"context"
	"strings"
)

//go:generate mockgen -destination=../mocks/mock_textgen/mock_textgen.go -package=mock_textgen storyline/internal/textgen Generator

// Generator returns the model completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const (
	generationPrompt = "Generate a description for a user story with the following title:"
	expansionPrompt  = "Expand the following user story description:"
	grammarPrompt    = "Correct the grammar of the following user story description:"
)

// Service builds the user story prompts on top of a Generator.
type Service struct {
	Gen Generator
}

func NewService(gen Generator) Service {
	if gen == nil {
		gen = Disabled{}
	}
	return Service{Gen: gen}
}

func (s Service) GenerateDescription(ctx context.Context, title string) (string, error) {
	return s.call(ctx, generationPrompt, title)
}

func (s Service) ExpandDescription(ctx context.Context, description string) (string, error) {
	return s.call(ctx, expansionPrompt, description)
}

func (s Service) CorrectDescription(ctx context.Context, description string) (string, error) {
	return s.call(ctx, grammarPrompt, description)
}

func (s Service) call(ctx context.Context, instruction, input string) (string, error) {
	out, err := s.Gen.Generate(ctx, instruction+"\n\n"+input)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Disabled generates nothing. It stands in when no model is configured.
type Disabled struct{}

func (Disabled) Generate(context.Context, string) (string, error) {
	return "", nil
}
