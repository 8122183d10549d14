package core

import "time"

// DefaultNotificationDuration is how long a toast stays visible.
const DefaultNotificationDuration = 3 * time.Second

type (
	Level string

	Action string

	Notification struct {
		Level    Level
		Title    string
		Duration time.Duration
	}
)

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

const (
	ActionList   Action = "list"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionLogin  Action = "login"
	ActionSignup Action = "signup"
)

var successTitles = map[Action]string{
	ActionCreate: "Transaction added",
	ActionUpdate: "Transaction updated",
	ActionDelete: "Transaction deleted",
	ActionLogin:  "Logged in successfully",
	ActionSignup: "Signed up successfully",
}

var failureTitles = map[Action]string{
	ActionCreate: "Error adding transaction",
	ActionUpdate: "Error updating transaction",
	ActionDelete: "Error deleting transaction",
	ActionLogin:  "Invalid email or password",
	ActionSignup: "Error signing up",
}

// Succeeded returns the fixed success toast for an action.
func Succeeded(a Action, d time.Duration) Notification {
	return Notification{Level: LevelSuccess, Title: successTitles[a], Duration: d}
}

// Failed returns the fixed failure toast for an action.
func Failed(a Action, d time.Duration) Notification {
	return Notification{Level: LevelError, Title: failureTitles[a], Duration: d}
}

// DurationMs is the duration in milliseconds, as the browser expects it.
func (n Notification) DurationMs() int {
	return int(n.Duration / time.Millisecond)
}
