package cards

import "storyline/internal/domain"

const iconBase = "https://raw.githubusercontent.com/google/material-design-icons/master/png/"

var statusIcons = map[domain.Status]string{
	domain.StatusOpen:      iconBase + "action/pending/materialiconsoutlined/48dp/1x/outline_pending_black_48dp.png",
	domain.StatusStarted:   iconBase + "av/play_circle/materialiconsoutlined/48dp/1x/outline_play_circle_black_48dp.png",
	domain.StatusCompleted: iconBase + "action/check_circle/materialiconsoutlined/48dp/1x/outline_check_circle_black_48dp.png",
}

const (
	iconSave     = iconBase + "content/save/materialiconsoutlined/24dp/1x/outline_save_black_24dp.png"
	iconAssign   = iconBase + "social/person/materialicons/24dp/1x/baseline_person_black_24dp.png"
	iconStart    = iconBase + "av/play_arrow/materialicons/24dp/1x/baseline_play_arrow_black_24dp.png"
	iconComplete = iconBase + "action/done/materialicons/24dp/1x/baseline_done_black_24dp.png"
	iconCancel   = iconBase + "content/clear/materialicons/24dp/1x/baseline_clear_black_24dp.png"
	iconEdit     = iconBase + "editor/edit_note/materialiconsoutlined/24dp/1x/outline_edit_note_black_24dp.png"
	iconRefresh  = iconBase + "navigation/refresh/materialicons/24dp/1x/baseline_refresh_black_24dp.png"
	iconGenerate = iconBase + "action/generating_tokens/materialiconsoutlined/24dp/1x/outline_generating_tokens_black_24dp.png"
	iconGrammar  = iconBase + "action/spellcheck/materialicons/24dp/1x/baseline_spellcheck_black_24dp.png"
	iconInfo     = iconBase + "action/info_outline/materialicons/48dp/1x/baseline_info_outline_black_48dp.png"
)

// StatusIcon returns the icon URL shown next to a story with the given status.
func StatusIcon(s domain.Status) string {
	return statusIcons[s]
}

func circleIcon(url, alt string) *Icon {
	return &Icon{IconURL: url, AltText: alt, ImageType: imageCircle}
}

func button(text, iconURL, function, interaction string, params []ActionParameter) Button {
	return Button{
		Text: text,
		Icon: circleIcon(iconURL, text),
		OnClick: OnClick{Action: Action{
			Function:    function,
			Interaction: interaction,
			Parameters:  params,
		}},
	}
}

// Buttons returns the action buttons available for the story in the given
// presentation context, in display order. The result depends only on the
// story status, the card type and the two flags. A nil slice means the caller
// must omit the button section entirely.
func Buttons(s domain.UserStory, cardType CardType, showEdit, showSave bool) []Button {
	params := []ActionParameter{
		{Key: "id", Value: s.ID},
		{Key: "cardType", Value: string(cardType)},
	}
	var interaction string
	if cardType.IsDialog() {
		interaction = InteractionOpenDialog
	}
	var buttons []Button
	if showSave {
		buttons = append(buttons, button("Save", iconSave, "saveUserStory", InteractionOpenDialog, params))
	}
	if s.Status != domain.StatusCompleted {
		buttons = append(buttons, button("Assign to me", iconAssign, "assignUserStory", interaction, params))
	}
	switch s.Status {
	case domain.StatusOpen:
		buttons = append(buttons, button("Start", iconStart, "startUserStory", interaction, params))
	case domain.StatusStarted:
		buttons = append(buttons, button("Complete", iconComplete, "completeUserStory", interaction, params))
	}
	if showSave {
		buttons = append(buttons, button("Cancel", iconCancel, "cancelEditUserStory", InteractionOpenDialog, params))
	}
	if showEdit {
		buttons = append(buttons, button("Edit", iconEdit, "editUserStory", InteractionOpenDialog, params))
	}
	if cardType == SingleMessage {
		buttons = append(buttons, button("Refresh", iconRefresh, "refreshUserStory", "", params))
	}
	return buttons
}

// buttonWidget wraps Buttons, returning false when there is nothing to show.
func buttonWidget(s domain.UserStory, cardType CardType, showEdit, showSave bool) (Widget, bool) {
	buttons := Buttons(s, cardType, showEdit, showSave)
	if len(buttons) == 0 {
		return Widget{}, false
	}
	return Widget{ButtonList: &ButtonList{Buttons: buttons}}, true
}

// assigneeWidget shows "-" for unassigned stories and "Unknown user" when
// the assignee has no stored profile.
func assigneeWidget(assignee string, user *domain.User) Widget {
	text := "-"
	if assignee != "" {
		text = "Unknown user"
	}
	var avatar *Icon
	if user != nil {
		text = user.DisplayName
		if user.AvatarURL != "" {
			avatar = &Icon{IconURL: user.AvatarURL, ImageType: imageCircle}
		}
	}
	return Widget{DecoratedText: &DecoratedText{TopLabel: "Assigned to", Text: text, StartIcon: avatar}}
}

func column(widgets ...Widget) Column {
	return Column{
		HorizontalSizeStyle: fillAvailableSpace,
		HorizontalAlignment: "START",
		VerticalAlignment:   "CENTER",
		Widgets:             widgets,
	}
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

// detailsWidget renders priority and size side by side.
func detailsWidget(s domain.UserStory) Widget {
	return Widget{Columns: &Columns{ColumnItems: []Column{
		column(Widget{DecoratedText: &DecoratedText{TopLabel: "Priority", Text: orDash(s.PriorityText())}}),
		column(Widget{DecoratedText: &DecoratedText{TopLabel: "Size", Text: orDash(s.SizeText())}}),
	}}}
}

func rowWidget(s domain.UserStory) Widget {
	return Widget{DecoratedText: &DecoratedText{
		Text:        s.Title,
		BottomLabel: "ID: " + s.ID,
		StartIcon:   circleIcon(StatusIcon(s.Status), string(s.Status)),
		Button: &Button{
			Text: "Edit",
			Icon: circleIcon(iconEdit, "Edit"),
			OnClick: OnClick{Action: Action{
				Function:    "editUserStory",
				Interaction: InteractionOpenDialog,
				Parameters:  []ActionParameter{{Key: "id", Value: s.ID}},
			}},
		},
	}}
}

func divider() Widget {
	return Widget{Divider: &Divider{}}
}

func paragraph(text string) Widget {
	return Widget{TextParagraph: &TextParagraph{Text: text}}
}
