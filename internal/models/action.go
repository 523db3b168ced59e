package models

// Action is a viewer intent applied by the state coordinator.
type Action int

const (
	ActionQuit Action = iota
	ActionScrollUp
	ActionScrollDown
	ActionToggleShowHistory
	ActionToggleShowHelp
	ActionSelectNext
	ActionSelectPrev
	ActionSelectLatest
)

func (a Action) String() string {
	switch a {
	case ActionQuit:
		return "quit"
	case ActionScrollUp:
		return "scroll_up"
	case ActionScrollDown:
		return "scroll_down"
	case ActionToggleShowHistory:
		return "toggle_history"
	case ActionToggleShowHelp:
		return "toggle_help"
	case ActionSelectNext:
		return "select_next"
	case ActionSelectPrev:
		return "select_prev"
	case ActionSelectLatest:
		return "select_latest"
	default:
		return "unknown"
	}
}
