package constant

// Shared slog attribute keys.
const (
	Error    = "error"
	ShowID   = "show_id"
	ViewerID = "viewer_id"
	UserName = "user_name"
	Event    = "event"
	Role     = "role"
	State    = "state"
)
