package cards

import "storyline/internal/domain"

// Card IDs used in cardsV2 entries.
const (
	UserStoryCardID   = "userStoryCard"
	UserStoriesCardID = "userStoriesCard"
	HelpCardID        = "helpCard"
)

// UserStoryCard is the standard single-story view posted in messages.
func UserStoryCard(s domain.UserStory, user *domain.User) Card {
	card := Card{Header: &CardHeader{
		Title:        s.Title,
		Subtitle:     "ID: " + s.ID,
		ImageURL:     StatusIcon(s.Status),
		ImageAltText: string(s.Status),
		ImageType:    imageCircle,
	}}
	if s.Description != "" {
		card.Sections = append(card.Sections, Section{Widgets: []Widget{paragraph(s.Description)}})
	}
	card.Sections = append(card.Sections, Section{Widgets: []Widget{
		detailsWidget(s),
		assigneeWidget(s.AssigneeID(), user),
	}})
	if w, ok := buttonWidget(s, SingleMessage, true, false); ok {
		card.Sections = append(card.Sections, Section{Widgets: []Widget{w}})
	}
	return card
}

// UserStoryListCard lists stories as collapsible sections. users is keyed by
// bare user id. Dialogs carry their own title, so the header is dropped there.
func UserStoryListCard(title string, stories []domain.UserStory, users map[string]domain.User, isDialog bool) Card {
	var card Card
	if !isDialog {
		card.Header = &CardHeader{Title: title}
	}
	if len(stories) == 0 {
		card.Sections = []Section{{Widgets: []Widget{paragraph("You don't have any user story yet.")}}}
		return card
	}
	cardType := ListMessage
	if isDialog {
		cardType = ListDialog
	}
	for _, s := range stories {
		section := Section{
			Collapsible:               true,
			UncollapsibleWidgetsCount: 1,
			Widgets:                   []Widget{rowWidget(s)},
		}
		if s.Description != "" {
			section.Widgets = append(section.Widgets, divider(), paragraph(s.Description))
		}
		var user *domain.User
		if u, ok := users[s.AssigneeID()]; ok && s.AssigneeID() != "" {
			user = &u
		}
		section.Widgets = append(section.Widgets,
			divider(),
			detailsWidget(s),
			assigneeWidget(s.AssigneeID(), user),
		)
		if w, ok := buttonWidget(s, cardType, false, false); ok {
			section.Widgets = append(section.Widgets, divider(), w)
		}
		card.Sections = append(card.Sections, section)
	}
	return card
}

func selectionItems[T ~string](values []T, current string) []SelectionItem {
	items := make([]SelectionItem, 0, len(values))
	for _, v := range values {
		items = append(items, SelectionItem{Text: string(v), Value: string(v), Selected: string(v) == current})
	}
	return items
}

func dropdown(name, label string, items []SelectionItem) Widget {
	return Widget{SelectionInput: &SelectionInput{Name: name, Label: label, Type: "DROPDOWN", Items: items}}
}

// EditUserStoryCard is the edit form shown in the single-story dialog. The AI
// buttons carry the assignee so the form can be rebuilt without a store read.
func EditUserStoryCard(s domain.UserStory, user *domain.User, saved bool) Card {
	params := []ActionParameter{
		{Key: "id", Value: s.ID},
		{Key: "assignee", Value: s.AssigneeID()},
		{Key: "cardType", Value: string(SingleDialog)},
	}
	card := Card{Header: &CardHeader{Title: s.Title, Subtitle: "ID: " + s.ID}}
	if saved {
		card.Sections = append(card.Sections, Section{Widgets: []Widget{{
			DecoratedText: &DecoratedText{Icon: &Icon{IconURL: iconInfo}, Text: "Saved."},
		}}})
	}
	card.Sections = append(card.Sections, Section{Widgets: []Widget{
		{TextInput: &TextInput{Name: "title", Label: "Title", Type: "SINGLE_LINE", Value: s.Title}},
		{TextInput: &TextInput{Name: "description", Label: "Description", Type: "MULTIPLE_LINE", Value: s.Description}},
		{ButtonList: &ButtonList{Buttons: []Button{
			button("Regenerate", iconGenerate, "generateUserStoryDescription", InteractionOpenDialog, params),
			button("Expand", iconGenerate, "expandUserStoryDescription", InteractionOpenDialog, params),
			button("Correct grammar", iconGrammar, "correctUserStoryDescriptionGrammar", InteractionOpenDialog, params),
		}}},
		dropdown("status", "Status", selectionItems(domain.Statuses, string(s.Status))),
		{Columns: &Columns{ColumnItems: []Column{
			column(dropdown("priority", "Priority", selectionItems(domain.Priorities, s.PriorityText()))),
			column(dropdown("size", "Size", selectionItems(domain.Sizes, s.SizeText()))),
		}}},
		assigneeWidget(s.AssigneeID(), user),
	}})
	if w, ok := buttonWidget(s, SingleDialog, false, true); ok {
		card.Sections = append(card.Sections, Section{Widgets: []Widget{w}})
	}
	return card
}

func command(text, help string, btn *Button) Widget {
	return Widget{DecoratedText: &DecoratedText{Text: text, BottomLabel: help, Button: btn}}
}

func tryIt(function, interaction string) *Button {
	return &Button{Text: "Try it", OnClick: OnClick{Action: Action{Function: function, Interaction: interaction}}}
}

// HelpCard lists the available commands.
func HelpCard() Card {
	return Card{
		Header: &CardHeader{Title: "Project Manager", Subtitle: "Agile Project Management app"},
		Sections: []Section{{
			Header: "Available commands",
			Widgets: []Widget{
				command("/createUserStory <i>title</i>", "Create a user story with the given title.", nil),
				divider(),
				command("/userStory <i>id</i>", "Displays the current status of a user story.", nil),
				divider(),
				command("/myUserStories", "Lists all the user stories assigned to the user.", tryIt("myUserStories", "")),
				divider(),
				command("/manageUserStories", "Opens a dialog for user story management.", tryIt("manageUserStories", InteractionOpenDialog)),
				divider(),
				command("/cleanupUserStories", "Deletes all user stories in the space.", tryIt("cleanupUserStories", "")),
				divider(),
				command("<b>@Project Manager</b> userstories", "Lists all the user stories assigned to the user.", nil),
			},
		}},
	}
}
