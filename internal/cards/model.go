// Package cards builds the chat card payloads shown for user stories.
// Every function here is pure: it maps domain values to card structs.
package cards

// CardType is the presentation context a user story card is rendered in.
// It travels with every button as the cardType action parameter.
type CardType string

const (
	SingleMessage CardType = "single_message"
	ListMessage   CardType = "list_message"
	SingleDialog  CardType = "single_dialog"
	ListDialog    CardType = "list_dialog"
)

// IsDialog reports whether cards of this type live inside a dialog.
func (t CardType) IsDialog() bool {
	return t == SingleDialog || t == ListDialog
}

const (
	InteractionOpenDialog = "OPEN_DIALOG"
	imageCircle           = "CIRCLE"
	fillAvailableSpace    = "FILL_AVAILABLE_SPACE"
)

type Card struct {
	Header   *CardHeader `json:"header,omitempty"`
	Sections []Section   `json:"sections,omitempty"`
}

type CardHeader struct {
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle,omitempty"`
	ImageURL     string `json:"imageUrl,omitempty"`
	ImageAltText string `json:"imageAltText,omitempty"`
	ImageType    string `json:"imageType,omitempty"`
}

type Section struct {
	Header                    string   `json:"header,omitempty"`
	Collapsible               bool     `json:"collapsible,omitempty"`
	UncollapsibleWidgetsCount int      `json:"uncollapsibleWidgetsCount,omitempty"`
	Widgets                   []Widget `json:"widgets"`
}

// Widget is a one-of: exactly one field is set.
type Widget struct {
	DecoratedText  *DecoratedText  `json:"decoratedText,omitempty"`
	TextParagraph  *TextParagraph  `json:"textParagraph,omitempty"`
	ButtonList     *ButtonList     `json:"buttonList,omitempty"`
	Columns        *Columns        `json:"columns,omitempty"`
	Divider        *Divider        `json:"divider,omitempty"`
	TextInput      *TextInput      `json:"textInput,omitempty"`
	SelectionInput *SelectionInput `json:"selectionInput,omitempty"`
}

type Divider struct{}

type TextParagraph struct {
	Text string `json:"text"`
}

type DecoratedText struct {
	TopLabel    string  `json:"topLabel,omitempty"`
	Text        string  `json:"text"`
	BottomLabel string  `json:"bottomLabel,omitempty"`
	StartIcon   *Icon   `json:"startIcon,omitempty"`
	Icon        *Icon   `json:"icon,omitempty"`
	Button      *Button `json:"button,omitempty"`
}

type Icon struct {
	IconURL   string `json:"iconUrl"`
	AltText   string `json:"altText,omitempty"`
	ImageType string `json:"imageType,omitempty"`
}

type ButtonList struct {
	Buttons []Button `json:"buttons"`
}

type Button struct {
	Text    string  `json:"text"`
	Icon    *Icon   `json:"icon,omitempty"`
	OnClick OnClick `json:"onClick"`
}

type OnClick struct {
	Action Action `json:"action"`
}

type Action struct {
	Function    string            `json:"function"`
	Interaction string            `json:"interaction,omitempty"`
	Parameters  []ActionParameter `json:"parameters,omitempty"`
}

type ActionParameter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Columns struct {
	ColumnItems []Column `json:"columnItems"`
}

type Column struct {
	HorizontalSizeStyle string   `json:"horizontalSizeStyle"`
	HorizontalAlignment string   `json:"horizontalAlignment"`
	VerticalAlignment   string   `json:"verticalAlignment"`
	Widgets             []Widget `json:"widgets"`
}

type TextInput struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type SelectionInput struct {
	Name  string          `json:"name"`
	Label string          `json:"label"`
	Type  string          `json:"type"`
	Items []SelectionItem `json:"items"`
}

type SelectionItem struct {
	Text     string `json:"text"`
	Value    string `json:"value"`
	Selected bool   `json:"selected"`
}
