package schema

import "fmt"

// IconType says how an activity's icon is rendered.
type IconType string

const (
	IconEmoji    IconType = "emoji"
	IconUpload   IconType = "upload"
	IconGenerate IconType = "generate"
)

// Activity is something the user tracks, e.g. "Running" measured in km.
type Activity struct {
	Meta
	Name              string   `json:"name"`
	Label             string   `json:"label"`
	Emoji             string   `json:"emoji"`
	IconType          IconType `json:"iconType"`
	IconURL           *string  `json:"iconUrl"`
	IconThumbnailURL  *string  `json:"iconThumbnailUrl"`
	Description       string   `json:"description"`
	QuantityUnit      string   `json:"quantityUnit"`
	OrderIndex        string   `json:"orderIndex"`
	ShowCombinedStats bool     `json:"showCombinedStats"`
}

func (a *Activity) ParentID() string { return "" }
func (a *Activity) SortKey() string  { return a.OrderIndex }

// Validate checks the fields the server requires.
func (a *Activity) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("id is required")
	}
	if a.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch a.IconType {
	case IconEmoji, IconUpload, IconGenerate:
	default:
		return fmt.Errorf("invalid icon type %q", a.IconType)
	}
	return nil
}

// ActivityKind is a sub-category of an activity, e.g. "Trail" under "Running".
type ActivityKind struct {
	Meta
	ActivityID string  `json:"activityId"`
	Name       string  `json:"name"`
	Color      *string `json:"color"`
	OrderIndex string  `json:"orderIndex"`
}

func (k *ActivityKind) ParentID() string { return k.ActivityID }
func (k *ActivityKind) SortKey() string  { return k.OrderIndex }

func (k *ActivityKind) Validate() error {
	if k.ID == "" {
		return fmt.Errorf("id is required")
	}
	if k.ActivityID == "" {
		return fmt.Errorf("activityId is required")
	}
	if k.Name == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ActivityLog records a quantity done on a day. A nil Quantity counts as 0.
type ActivityLog struct {
	Meta
	ActivityID     string   `json:"activityId"`
	ActivityKindID *string  `json:"activityKindId"`
	Quantity       *float64 `json:"quantity"`
	Memo           string   `json:"memo"`
	Date           string   `json:"date"`
	Time           *string  `json:"time"`
}

func (l *ActivityLog) ParentID() string { return l.ActivityID }

func (l *ActivityLog) SortKey() string {
	if l.Time != nil {
		return l.Date + " " + *l.Time
	}
	return l.Date
}

func (l *ActivityLog) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("id is required")
	}
	if l.ActivityID == "" {
		return fmt.Errorf("activityId is required")
	}
	if _, err := ParseDate(l.Date); err != nil {
		return err
	}
	if l.Quantity != nil && *l.Quantity < 0 {
		return fmt.Errorf("quantity must not be negative (got %v)", *l.Quantity)
	}
	return nil
}

// QuantityOrZero returns the logged quantity, treating nil as 0.
func (l ActivityLog) QuantityOrZero() float64 {
	if l.Quantity == nil {
		return 0
	}
	return *l.Quantity
}

// Goal is a daily target for an activity over a date range. A nil EndDate
// means the goal is open-ended.
type Goal struct {
	Meta
	ActivityID          string  `json:"activityId"`
	DailyTargetQuantity float64 `json:"dailyTargetQuantity"`
	StartDate           string  `json:"startDate"`
	EndDate             *string `json:"endDate"`
	IsActive            bool    `json:"isActive"`
	Description         string  `json:"description"`
}

func (g *Goal) ParentID() string { return g.ActivityID }
func (g *Goal) SortKey() string  { return g.StartDate }

func (g *Goal) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("id is required")
	}
	if g.ActivityID == "" {
		return fmt.Errorf("activityId is required")
	}
	if g.DailyTargetQuantity < 0 {
		return fmt.Errorf("dailyTargetQuantity must not be negative (got %v)", g.DailyTargetQuantity)
	}
	start, err := ParseDate(g.StartDate)
	if err != nil {
		return err
	}
	if g.EndDate != nil {
		end, err := ParseDate(*g.EndDate)
		if err != nil {
			return err
		}
		if end.Before(start) {
			return fmt.Errorf("endDate %s is before startDate %s", *g.EndDate, g.StartDate)
		}
	}
	return nil
}

// Task is a one-off todo item.
type Task struct {
	Meta
	Title      string  `json:"title"`
	StartDate  *string `json:"startDate"`
	DueDate    *string `json:"dueDate"`
	DoneDate   *string `json:"doneDate"`
	Memo       string  `json:"memo"`
	ArchivedAt *string `json:"archivedAt"`
}

func (t *Task) ParentID() string { return "" }
func (t *Task) SortKey() string  { return t.CreatedAt }

func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	for _, d := range []*string{t.StartDate, t.DueDate, t.DoneDate} {
		if d == nil {
			continue
		}
		if _, err := ParseDate(*d); err != nil {
			return err
		}
	}
	return nil
}

// IsDone reports whether the task has a done date.
func (t Task) IsDone() bool { return t.DoneDate != nil }

// ActivityIconBlob is an icon image waiting to be uploaded. There is at
// most one per activity.
type ActivityIconBlob struct {
	ActivityID string `json:"activityId"`
	Base64     string `json:"base64"`
	MimeType   string `json:"mimeType"`
}

// IconDelete is a tombstone for an icon that must be removed remotely.
type IconDelete struct {
	ActivityID string `json:"activityId"`
}
