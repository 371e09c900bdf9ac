package schema

// Nullable is a patch value for a nullable field. The zero value leaves the
// field unchanged; Null clears it; Set replaces it.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// SetTo returns a Nullable that replaces the field with v.
func SetTo[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// Null returns a Nullable that clears the field.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

func (n Nullable[T]) applyTo(dst **T) {
	if !n.Set {
		return
	}
	if n.Value == nil {
		*dst = nil
		return
	}
	v := *n.Value
	*dst = &v
}

func set[T any](src *T, dst *T) {
	if src != nil {
		*dst = *src
	}
}

// NewActivity is the input for creating an activity.
type NewActivity struct {
	Name              string
	Label             string
	Emoji             string
	IconType          IconType
	Description       string
	QuantityUnit      string
	OrderIndex        string
	ShowCombinedStats bool
}

// Build turns the input into a persisted record. Server-assigned fields
// start empty.
func (n NewActivity) Build(meta Meta) Activity {
	iconType := n.IconType
	if iconType == "" {
		iconType = IconEmoji
	}
	return Activity{
		Meta:              meta,
		Name:              n.Name,
		Label:             n.Label,
		Emoji:             n.Emoji,
		IconType:          iconType,
		Description:       n.Description,
		QuantityUnit:      n.QuantityUnit,
		OrderIndex:        n.OrderIndex,
		ShowCombinedStats: n.ShowCombinedStats,
	}
}

// ActivityPatch lists the activity fields a local edit may change.
type ActivityPatch struct {
	Name              *string
	Label             *string
	Emoji             *string
	IconType          *IconType
	Description       *string
	QuantityUnit      *string
	OrderIndex        *string
	ShowCombinedStats *bool
}

func (p ActivityPatch) Apply(a *Activity) {
	set(p.Name, &a.Name)
	set(p.Label, &a.Label)
	set(p.Emoji, &a.Emoji)
	set(p.IconType, &a.IconType)
	set(p.Description, &a.Description)
	set(p.QuantityUnit, &a.QuantityUnit)
	set(p.OrderIndex, &a.OrderIndex)
	set(p.ShowCombinedStats, &a.ShowCombinedStats)
}

type NewActivityKind struct {
	ActivityID string
	Name       string
	Color      *string
	OrderIndex string
}

func (n NewActivityKind) Build(meta Meta) ActivityKind {
	return ActivityKind{
		Meta:       meta,
		ActivityID: n.ActivityID,
		Name:       n.Name,
		Color:      n.Color,
		OrderIndex: n.OrderIndex,
	}
}

type ActivityKindPatch struct {
	Name       *string
	Color      Nullable[string]
	OrderIndex *string
}

func (p ActivityKindPatch) Apply(k *ActivityKind) {
	set(p.Name, &k.Name)
	p.Color.applyTo(&k.Color)
	set(p.OrderIndex, &k.OrderIndex)
}

type NewActivityLog struct {
	ActivityID     string
	ActivityKindID *string
	Quantity       *float64
	Memo           string
	Date           string
	Time           *string
}

func (n NewActivityLog) Build(meta Meta) ActivityLog {
	return ActivityLog{
		Meta:           meta,
		ActivityID:     n.ActivityID,
		ActivityKindID: n.ActivityKindID,
		Quantity:       n.Quantity,
		Memo:           n.Memo,
		Date:           n.Date,
		Time:           n.Time,
	}
}

type ActivityLogPatch struct {
	ActivityKindID Nullable[string]
	Quantity       Nullable[float64]
	Memo           *string
	Date           *string
	Time           Nullable[string]
}

func (p ActivityLogPatch) Apply(l *ActivityLog) {
	p.ActivityKindID.applyTo(&l.ActivityKindID)
	p.Quantity.applyTo(&l.Quantity)
	set(p.Memo, &l.Memo)
	set(p.Date, &l.Date)
	p.Time.applyTo(&l.Time)
}

type NewGoal struct {
	ActivityID          string
	DailyTargetQuantity float64
	StartDate           string
	EndDate             *string
	Description         string
}

// Build creates an active goal.
func (n NewGoal) Build(meta Meta) Goal {
	return Goal{
		Meta:                meta,
		ActivityID:          n.ActivityID,
		DailyTargetQuantity: n.DailyTargetQuantity,
		StartDate:           n.StartDate,
		EndDate:             n.EndDate,
		IsActive:            true,
		Description:         n.Description,
	}
}

type GoalPatch struct {
	DailyTargetQuantity *float64
	StartDate           *string
	EndDate             Nullable[string]
	IsActive            *bool
	Description         *string
}

func (p GoalPatch) Apply(g *Goal) {
	set(p.DailyTargetQuantity, &g.DailyTargetQuantity)
	set(p.StartDate, &g.StartDate)
	p.EndDate.applyTo(&g.EndDate)
	set(p.IsActive, &g.IsActive)
	set(p.Description, &g.Description)
}

type NewTask struct {
	Title     string
	StartDate *string
	DueDate   *string
	Memo      string
}

func (n NewTask) Build(meta Meta) Task {
	return Task{
		Meta:      meta,
		Title:     n.Title,
		StartDate: n.StartDate,
		DueDate:   n.DueDate,
		Memo:      n.Memo,
	}
}

type TaskPatch struct {
	Title      *string
	StartDate  Nullable[string]
	DueDate    Nullable[string]
	DoneDate   Nullable[string]
	Memo       *string
	ArchivedAt Nullable[string]
}

func (p TaskPatch) Apply(t *Task) {
	set(p.Title, &t.Title)
	p.StartDate.applyTo(&t.StartDate)
	p.DueDate.applyTo(&t.DueDate)
	p.DoneDate.applyTo(&t.DoneDate)
	set(p.Memo, &t.Memo)
	p.ArchivedAt.applyTo(&t.ArchivedAt)
}
