package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestTodoInputNormalize_TrimsAndDefaults(t *testing.T) {
	in := TodoInput{
		Title:       "  Buy milk  ",
		Description: "  two litres ",
		Category:    " home ",
		Tags:        []string{" a ", "", "b"},
	}

	todo, err := in.Normalize(testNow)
	require.NoError(t, err)

	assert.Equal(t, "Buy milk", todo.Title)
	assert.Equal(t, "two litres", todo.Description)
	assert.Equal(t, "home", todo.Category)
	assert.Equal(t, pq.StringArray{"a", "b"}, todo.Tags)
	assert.Equal(t, PriorityMedium, todo.Priority)
	assert.False(t, todo.Completed)
	assert.Nil(t, todo.DueDate)
}

func TestTodoInputNormalize_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		in    TodoInput
		field string
	}{
		{"blank title", TodoInput{Title: "   "}, "title"},
		{"title too long", TodoInput{Title: strings.Repeat("x", MaxTitleLength+1)}, "title"},
		{"description too long", TodoInput{Title: "t", Description: strings.Repeat("x", MaxDescriptionLength+1)}, "description"},
		{"category too long", TodoInput{Title: "t", Category: strings.Repeat("x", MaxCategoryLength+1)}, "category"},
		{"tag too long", TodoInput{Title: "t", Tags: []string{strings.Repeat("x", MaxTagLength+1)}}, "tags"},
		{"unknown priority", TodoInput{Title: "t", Priority: "urgent"}, "priority"},
		{"due date in the past", TodoInput{Title: "t", DueDate: &DateTime{testNow.Add(-time.Hour)}}, "dueDate"},
		{"due date equal to now", TodoInput{Title: "t", DueDate: &DateTime{testNow}}, "dueDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.in.Normalize(testNow)

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.True(t, verrs.Has(tt.field), "expected failure on %s, got %v", tt.field, verrs)
		})
	}
}

func TestTodoInputNormalize_LengthsCountCharacters(t *testing.T) {
	title := strings.Repeat("할", MaxTitleLength)

	todo, err := TodoInput{Title: title}.Normalize(testNow)
	require.NoError(t, err)
	assert.Equal(t, title, todo.Title)
}

func TestTodoInputNormalize_CollectsEveryFailure(t *testing.T) {
	_, err := TodoInput{Title: "", Priority: "nope", Tags: []string{strings.Repeat("x", 31)}}.Normalize(testNow)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("title"))
	assert.True(t, verrs.Has("priority"))
	assert.True(t, verrs.Has("tags"))
}

func TestTodoInputNormalize_Idempotent(t *testing.T) {
	in := TodoInput{
		Title:    "  Plan trip ",
		Priority: PriorityHigh,
		Category: " travel",
		DueDate:  &DateTime{testNow.Add(48 * time.Hour)},
		Tags:     []string{" x", "  ", "y "},
	}

	first, err := in.Normalize(testNow)
	require.NoError(t, err)
	second, err := first.ToInput().Normalize(testNow)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestComputeDueStatus(t *testing.T) {
	tests := []struct {
		name      string
		due       *time.Time
		completed bool
		want      DueStatus
	}{
		{"no due date", nil, false, DueStatusNoDueDate},
		{"completed and past due", ptr(testNow.Add(-time.Hour)), true, DueStatusCompleted},
		{"overdue", ptr(testNow.Add(-time.Minute)), false, DueStatusOverdue},
		{"due in twelve hours", ptr(testNow.Add(12 * time.Hour)), false, DueStatusDueToday},
		{"due exactly in a day", ptr(testNow.Add(24 * time.Hour)), false, DueStatusDueToday},
		{"due in three days", ptr(testNow.Add(72 * time.Hour)), false, DueStatusDueSoon},
		{"due exactly in a week", ptr(testNow.Add(7 * 24 * time.Hour)), false, DueStatusDueSoon},
		{"due in ten days", ptr(testNow.Add(10 * 24 * time.Hour)), false, DueStatusNotDue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			todo := Todo{DueDate: tt.due, Completed: tt.completed}
			assert.Equal(t, tt.want, ComputeDueStatus(todo, testNow))
		})
	}
}

func TestComputeDaysUntilDue(t *testing.T) {
	assert.Nil(t, ComputeDaysUntilDue(Todo{}, testNow))

	tests := []struct {
		offset time.Duration
		want   int
	}{
		{12 * time.Hour, 1},
		{24 * time.Hour, 1},
		{25 * time.Hour, 2},
		{-12 * time.Hour, 0},
		{-36 * time.Hour, -1},
	}
	for _, tt := range tests {
		due := testNow.Add(tt.offset)
		got := ComputeDaysUntilDue(Todo{DueDate: &due}, testNow)
		require.NotNil(t, got)
		assert.Equal(t, tt.want, *got, "offset %s", tt.offset)
	}
}

func TestTodoView_SerializesDerivedFields(t *testing.T) {
	due := testNow.Add(12 * time.Hour)
	todo := Todo{Title: "t", Priority: PriorityLow, DueDate: &due}

	raw, err := json.Marshal(todo.View(testNow))
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "due-today", body["dueStatus"])
	assert.Equal(t, float64(1), body["daysUntilDue"])
	assert.Equal(t, []any{}, body["tags"])
}

func TestTodoPatchChanges_OnlySuppliedFields(t *testing.T) {
	var patch TodoPatch
	require.NoError(t, json.Unmarshal([]byte(`{"title":"  New title ","tags":[" a ",""]}`), &patch))

	changes, err := patch.Changes(testNow)
	require.NoError(t, err)

	require.NotNil(t, changes.Title)
	assert.Equal(t, "New title", *changes.Title)
	require.NotNil(t, changes.Tags)
	assert.Equal(t, pq.StringArray{"a"}, *changes.Tags)
	assert.Nil(t, changes.Description)
	assert.Nil(t, changes.Completed)
	assert.Nil(t, changes.Priority)
	assert.Nil(t, changes.DueDate)
	assert.False(t, changes.ClearDueDate)
}

func TestTodoPatchChanges_DueDate(t *testing.T) {
	t.Run("null clears", func(t *testing.T) {
		var patch TodoPatch
		require.NoError(t, json.Unmarshal([]byte(`{"dueDate":null}`), &patch))

		changes, err := patch.Changes(testNow)
		require.NoError(t, err)
		assert.True(t, changes.ClearDueDate)
	})

	t.Run("past date rejected", func(t *testing.T) {
		var patch TodoPatch
		require.NoError(t, json.Unmarshal([]byte(`{"dueDate":"2024-01-09"}`), &patch))

		_, err := patch.Changes(testNow)
		var verrs ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.True(t, verrs.Has("dueDate"))
	})

	t.Run("omitted leaves stored date alone", func(t *testing.T) {
		past := testNow.Add(-48 * time.Hour)
		todo := Todo{Title: "t", DueDate: &past}

		var patch TodoPatch
		require.NoError(t, json.Unmarshal([]byte(`{"completed":true}`), &patch))
		changes, err := patch.Changes(testNow)
		require.NoError(t, err)

		changes.Apply(&todo)
		assert.True(t, todo.Completed)
		assert.Equal(t, past, *todo.DueDate)
	})
}

func TestTodoPatchChanges_Rejections(t *testing.T) {
	tests := map[string]string{
		"title":     `{"title":"   "}`,
		"completed": `{"completed":null}`,
		"priority":  `{"priority":"urgent"}`,
		"category":  `{"category":"` + strings.Repeat("c", 51) + `"}`,
	}
	for field, body := range tests {
		t.Run(field, func(t *testing.T) {
			var patch TodoPatch
			require.NoError(t, json.Unmarshal([]byte(body), &patch))

			_, err := patch.Changes(testNow)
			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)
			assert.True(t, verrs.Has(field))
		})
	}
}

func TestDateTime_AcceptsDateOnly(t *testing.T) {
	var d DateTime
	require.NoError(t, json.Unmarshal([]byte(`"2030-05-01"`), &d))
	assert.Equal(t, time.Date(2030, 5, 1, 0, 0, 0, 0, time.UTC), d.Time)

	assert.Error(t, json.Unmarshal([]byte(`"next tuesday"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`42`), &d))
}
