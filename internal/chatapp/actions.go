package chatapp

// Action is a card action the router knows how to handle.
type Action int

const (
	ActionUnknown Action = iota
	ActionMyUserStories
	ActionManageUserStories
	ActionCleanupUserStories
	ActionEdit
	ActionAssign
	ActionStart
	ActionComplete
	ActionCancelEdit
	ActionSave
	ActionRefresh
	ActionGenerateDescription
	ActionExpandDescription
	ActionCorrectGrammar
)

var actionNames = map[string]Action{
	"myUserStories":                      ActionMyUserStories,
	"manageUserStories":                  ActionManageUserStories,
	"cleanupUserStories":                 ActionCleanupUserStories,
	"editUserStory":                      ActionEdit,
	"assignUserStory":                    ActionAssign,
	"startUserStory":                     ActionStart,
	"completeUserStory":                  ActionComplete,
	"cancelEditUserStory":                ActionCancelEdit,
	"saveUserStory":                      ActionSave,
	"refreshUserStory":                   ActionRefresh,
	"generateUserStoryDescription":       ActionGenerateDescription,
	"expandUserStoryDescription":         ActionExpandDescription,
	"correctUserStoryDescriptionGrammar": ActionCorrectGrammar,
}

// ParseAction maps an invoked function name to an Action. Unknown names,
// including differently cased ones, yield ActionUnknown.
func ParseAction(name string) Action {
	return actionNames[name]
}

func (a Action) String() string {
	for name, v := range actionNames {
		if v == a {
			return name
		}
	}
	return "unknown"
}

// aiAction selects the text transform applied by the edit dialog buttons.
type aiAction int

const (
	aiGenerate aiAction = iota
	aiExpand
	aiGrammar
)
