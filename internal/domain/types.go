package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	KindOneTime   Kind = "one_time"
	KindPlanned   Kind = "planned"
	KindRecurring Kind = "recurring"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
)

// Terminal reports whether no handler will visit a task in this status again.
func (s Status) Terminal() bool { return s == StatusComplete || s == StatusError }

// Task is the persisted unit of deferred work.
type Task struct {
	ID            string
	Owner         string
	Kind          Kind
	Status        Status
	PerformAt     time.Time
	Payload       json.RawMessage
	CurrentIndex  int
	ErrorMessages []string
	Extra         map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Mutation is the write a handler produces for the record it visited.
// Nil fields are left untouched; Errors are appended, never replaced.
type Mutation struct {
	Status       *Status
	PerformAt    *time.Time
	CurrentIndex *int
	Errors       []string
}

// Text is a localizable string. Key is a catalog key unless Pure is set,
// in which case it is sent verbatim.
type Text struct {
	Key    string            `json:"key"`
	Params map[string]string `json:"params,omitempty"`
	Pure   bool              `json:"pure,omitempty"`
}

func Literal(s string) Text { return Text{Key: s, Pure: true} }

func (t Text) IsZero() bool { return t.Key == "" }

type OneTimePayload struct {
	Title Text   `json:"title"`
	Body  *Text  `json:"body,omitempty"`
	Event string `json:"event,omitempty"`
}

type Step struct {
	DayOffset int    `json:"dayOffset"`
	Title     Text   `json:"title"`
	Body      *Text  `json:"body,omitempty"`
	Event     string `json:"event,omitempty"`
}

type PlannedPayload struct {
	StartDate time.Time `json:"startDate"`
	Steps     []Step    `json:"steps"`
}

type Pace string

const (
	PaceDay   Pace = "day"
	PaceWeek  Pace = "week"
	PaceMonth Pace = "month"
)

// Days returns the fixed day count of one pace unit.
func (p Pace) Days() (int, error) {
	switch p {
	case PaceDay:
		return 1, nil
	case PaceWeek:
		return 7, nil
	case PaceMonth:
		return 30, nil
	default:
		return 0, fmt.Errorf("unknown pace %q", string(p))
	}
}

type RecurringPayload struct {
	Title    Text   `json:"title"`
	Body     *Text  `json:"body,omitempty"`
	Event    string `json:"event,omitempty"`
	Interval int    `json:"interval"`
	Pace     Pace   `json:"pace"`
}

// Event tags carried in notification data.
const (
	EventInfo               = "info"
	EventRemindDailyFlow    = "remind_daily_flow"
	EventCompleteGoal       = "complete_goal"
	EventJoinedGroup        = "joined_group"
	EventLeftGroup          = "left_group"
	EventGroupActionCreated = "group_action_created"
)

// GroupAction is an item in a group's activity feed (prayer, gratitude, ...).
type GroupAction struct {
	ID        string
	GroupID   string
	Type      string
	Creator   string
	ViewerIDs []string
	Created   time.Time
}

func (a GroupAction) ViewedBy(uid string) bool {
	for _, v := range a.ViewerIDs {
		if v == uid {
			return true
		}
	}
	return false
}

type User struct {
	UID      string
	Name     string
	Language string
}
