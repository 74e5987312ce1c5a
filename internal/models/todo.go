package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MaxCategoryLength    = 50
	MaxTagLength         = 30
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// DueStatus is the lifecycle stage of a todo relative to its due date.
type DueStatus string

const (
	DueStatusNoDueDate DueStatus = "no-due-date"
	DueStatusCompleted DueStatus = "completed"
	DueStatusOverdue   DueStatus = "overdue"
	DueStatusDueToday  DueStatus = "due-today"
	DueStatusDueSoon   DueStatus = "due-soon"
	DueStatusNotDue    DueStatus = "not-due"
)

type Todo struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	Title       string         `json:"title" gorm:"type:varchar(200);not null"`
	Description string         `json:"description,omitempty" gorm:"type:varchar(1000)"`
	Completed   bool           `json:"completed" gorm:"default:false;index:idx_todos_completed_priority,priority:1"`
	Priority    Priority       `json:"priority" gorm:"type:varchar(10);not null;index:idx_todos_completed_priority,priority:2"`
	Category    string         `json:"category,omitempty" gorm:"type:varchar(50);index"`
	DueDate     *time.Time     `json:"dueDate,omitempty" gorm:"index"`
	Tags        pq.StringArray `json:"tags" gorm:"type:text[];index:idx_todos_tags,type:gin"`
	CreatedBy   *uuid.UUID     `json:"createdBy,omitempty" gorm:"type:uuid;index"`
	CreatedAt   time.Time      `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updatedAt" gorm:"autoUpdateTime"`
}

// ComputeDueStatus derives the due status at now. A completed todo reports
// completed even when its due date has passed.
func ComputeDueStatus(t Todo, now time.Time) DueStatus {
	if t.DueDate == nil {
		return DueStatusNoDueDate
	}
	due := *t.DueDate
	switch {
	case t.Completed:
		return DueStatusCompleted
	case due.Before(now):
		return DueStatusOverdue
	case !due.After(now.Add(24 * time.Hour)):
		return DueStatusDueToday
	case !due.After(now.Add(7 * 24 * time.Hour)):
		return DueStatusDueSoon
	}
	return DueStatusNotDue
}

// ComputeDaysUntilDue returns ceil((dueDate - now) / 1 day), or nil without a due date.
func ComputeDaysUntilDue(t Todo, now time.Time) *int {
	if t.DueDate == nil {
		return nil
	}
	days := int(math.Ceil(float64(t.DueDate.Sub(now)) / float64(24*time.Hour)))
	return &days
}

// TodoView is the serialized form of a todo with its derived fields.
type TodoView struct {
	Todo
	DaysUntilDue *int      `json:"daysUntilDue"`
	DueStatus    DueStatus `json:"dueStatus"`
}

func (t Todo) View(now time.Time) TodoView {
	if t.Tags == nil {
		t.Tags = pq.StringArray{}
	}
	return TodoView{
		Todo:         t,
		DaysUntilDue: ComputeDaysUntilDue(t, now),
		DueStatus:    ComputeDueStatus(t, now),
	}
}

func TodoViews(todos []Todo, now time.Time) []TodoView {
	views := make([]TodoView, 0, len(todos))
	for _, t := range todos {
		views = append(views, t.View(now))
	}
	return views
}

// DateTime accepts RFC 3339 timestamps as well as bare dates from form inputs.
type DateTime struct {
	time.Time
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

// TodoInput is the body of a create request.
type TodoInput struct {
	Title       string     `json:"title" example:"Buy groceries"`
	Description string     `json:"description" example:"Milk, bread and eggs"`
	Completed   *bool      `json:"completed" example:"false"`
	Priority    Priority   `json:"priority" example:"medium" enums:"low,medium,high"`
	Category    string     `json:"category" example:"home"`
	DueDate     *DateTime  `json:"dueDate" swaggertype:"string" example:"2030-12-31T23:59:59Z"`
	Tags        []string   `json:"tags" example:"groceries,home"`
	CreatedBy   *uuid.UUID `json:"-"`
}

// Normalize trims and defaults the input and validates it against now.
func (in TodoInput) Normalize(now time.Time) (*Todo, error) {
	var errs ValidationErrors

	t := &Todo{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Priority:    in.Priority,
		CreatedBy:   in.CreatedBy,
	}
	validateTitle(&errs, t.Title)
	validateMaxLen(&errs, "description", t.Description, MaxDescriptionLength)
	validateMaxLen(&errs, "category", t.Category, MaxCategoryLength)

	if t.Priority == "" {
		t.Priority = PriorityMedium
	} else if !t.Priority.Valid() {
		errs.add("priority", "priority must be one of low, medium, high")
	}
	if in.Completed != nil {
		t.Completed = *in.Completed
	}
	if in.DueDate != nil {
		due := in.DueDate.Time
		validateDueDate(&errs, due, now)
		t.DueDate = &due
	}
	tags, ok := NormalizeTags(in.Tags)
	if !ok {
		errs.add("tags", fmt.Sprintf("each tag must be at most %d characters", MaxTagLength))
	}
	t.Tags = tags

	if err := errs.err(); err != nil {
		return nil, err
	}
	return t, nil
}

// ToInput converts a stored todo back to create input.
func (t Todo) ToInput() TodoInput {
	in := TodoInput{
		Title:       t.Title,
		Description: t.Description,
		Completed:   &t.Completed,
		Priority:    t.Priority,
		Category:    t.Category,
		Tags:        append([]string(nil), t.Tags...),
		CreatedBy:   t.CreatedBy,
	}
	if t.DueDate != nil {
		in.DueDate = &DateTime{Time: *t.DueDate}
	}
	return in
}

// NormalizeTags trims every tag and drops empty ones. ok is false when a tag
// exceeds MaxTagLength; the returned slice is never nil.
func NormalizeTags(tags []string) (pq.StringArray, bool) {
	out := pq.StringArray{}
	ok := true
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if utf8.RuneCountInString(tag) > MaxTagLength {
			ok = false
		}
		out = append(out, tag)
	}
	return out, ok
}

// TodoPatch is the body of a partial update. Only supplied fields are checked.
type TodoPatch struct {
	Title       Optional[string]   `json:"title"`
	Description Optional[string]   `json:"description"`
	Completed   Optional[bool]     `json:"completed"`
	Priority    Optional[Priority] `json:"priority"`
	Category    Optional[string]   `json:"category"`
	DueDate     Optional[DateTime] `json:"dueDate"`
	Tags        Optional[[]string] `json:"tags"`
}

// TodoChanges is a validated set of field assignments for one todo.
// Nil fields are left untouched.
type TodoChanges struct {
	Title        *string
	Description  *string
	Completed    *bool
	Priority     *Priority
	Category     *string
	DueDate      *time.Time
	ClearDueDate bool
	Tags         *pq.StringArray
}

func (c TodoChanges) Empty() bool {
	return c.Title == nil && c.Description == nil && c.Completed == nil && c.Priority == nil &&
		c.Category == nil && c.DueDate == nil && !c.ClearDueDate && c.Tags == nil
}

// Apply writes the changes onto t.
func (c TodoChanges) Apply(t *Todo) {
	if c.Title != nil {
		t.Title = *c.Title
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Completed != nil {
		t.Completed = *c.Completed
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	if c.Category != nil {
		t.Category = *c.Category
	}
	if c.ClearDueDate {
		t.DueDate = nil
	} else if c.DueDate != nil {
		due := *c.DueDate
		t.DueDate = &due
	}
	if c.Tags != nil {
		t.Tags = append(pq.StringArray{}, (*c.Tags)...)
	}
}

// Changes validates the supplied fields. A dueDate being set is checked
// against now; clearing it is always allowed.
func (p TodoPatch) Changes(now time.Time) (TodoChanges, error) {
	var (
		c    TodoChanges
		errs ValidationErrors
	)

	if p.Title.Set {
		title := strings.TrimSpace(p.Title.Value)
		validateTitle(&errs, title)
		c.Title = &title
	}
	if p.Description.Set {
		desc := strings.TrimSpace(p.Description.Value)
		validateMaxLen(&errs, "description", desc, MaxDescriptionLength)
		c.Description = &desc
	}
	if p.Completed.Set {
		if p.Completed.Null {
			errs.add("completed", "completed must be true or false")
		}
		completed := p.Completed.Value
		c.Completed = &completed
	}
	if p.Priority.Set {
		prio := p.Priority.Value
		if !prio.Valid() {
			errs.add("priority", "priority must be one of low, medium, high")
		}
		c.Priority = &prio
	}
	if p.Category.Set {
		cat := strings.TrimSpace(p.Category.Value)
		validateMaxLen(&errs, "category", cat, MaxCategoryLength)
		c.Category = &cat
	}
	if p.DueDate.Set {
		if p.DueDate.Null {
			c.ClearDueDate = true
		} else {
			due := p.DueDate.Value.Time
			validateDueDate(&errs, due, now)
			c.DueDate = &due
		}
	}
	if p.Tags.Set {
		tags, ok := NormalizeTags(p.Tags.Value)
		if !ok {
			errs.add("tags", fmt.Sprintf("each tag must be at most %d characters", MaxTagLength))
		}
		c.Tags = &tags
	}

	if err := errs.err(); err != nil {
		return TodoChanges{}, err
	}
	return c, nil
}

func validateTitle(errs *ValidationErrors, title string) {
	if title == "" {
		errs.add("title", "title is required")
		return
	}
	validateMaxLen(errs, "title", title, MaxTitleLength)
}

func validateDueDate(errs *ValidationErrors, due, now time.Time) {
	if !due.After(now) {
		errs.add("dueDate", "dueDate must be in the future")
	}
}

func validateMaxLen(errs *ValidationErrors, field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		errs.add(field, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
}
