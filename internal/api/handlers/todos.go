package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rohits-web03/todo-api/internal/api/middleware"
	"github.com/rohits-web03/todo-api/internal/api/services"
	"github.com/rohits-web03/todo-api/internal/models"
	"github.com/rohits-web03/todo-api/internal/repositories"
	"github.com/rohits-web03/todo-api/internal/utils"
)

// CreateTodo godoc
// @Summary Create a todo
// @Description Validates and normalizes the input. The session user, if any, becomes createdBy.
// @Tags Todos
// @Accept json
// @Produce json
// @Param todo body models.TodoInput true "Todo"
// @Success 201 {object} utils.Payload{data=models.TodoView}
// @Failure 400 {object} utils.Payload
// @Router /api/todos [post]
func (h *Handler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var input models.TodoInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.writeError(w, r, err)
		return
	}
	if owner, ok := middleware.UserIDFromContext(r.Context()); ok {
		input.CreatedBy = &owner
	}

	todo, err := h.Todos.Create(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusCreated, utils.Payload{
		Success: true,
		Message: "Todo created",
		Data:    todo.View(h.Todos.Now()),
	})
}

// ListTodos godoc
// @Summary List todos
// @Tags Todos
// @Produce json
// @Param completed query bool false "Completion state"
// @Param priority query string false "low, medium or high"
// @Param category query string false "Exact category"
// @Param tag query string false "Todos carrying this tag"
// @Param createdBy query string false "Owner id"
// @Param q query string false "Search in title and description"
// @Param sort query string false "Sort field, prefix with - for descending" default(-createdAt)
// @Success 200 {object} utils.Payload{data=[]models.TodoView}
// @Failure 400 {object} utils.Payload
// @Router /api/todos [get]
func (h *Handler) ListTodos(w http.ResponseWriter, r *http.Request) {
	filter, err := todoFilterFromQuery(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	sort, err := repositories.ParseTodoSort(r.URL.Query().Get("sort"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	todos, err := h.Todos.List(r.Context(), filter, sort)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTodos(w, todos, h.Todos.Now())
}

func todoFilterFromQuery(r *http.Request) (repositories.TodoFilter, error) {
	var (
		q      = r.URL.Query()
		filter repositories.TodoFilter
		errs   models.ValidationErrors
	)
	if raw := q.Get("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, models.ValidationError{Field: "completed", Reason: "completed must be true or false"})
		}
		filter.Completed = &completed
	}
	if raw := q.Get("priority"); raw != "" {
		p := models.Priority(raw)
		if !p.Valid() {
			errs = append(errs, models.ValidationError{Field: "priority", Reason: "priority must be one of low, medium, high"})
		}
		filter.Priority = &p
	}
	if raw := q.Get("createdBy"); raw != "" {
		owner, err := uuid.Parse(raw)
		if err != nil {
			errs = append(errs, models.ValidationError{Field: "createdBy", Reason: "createdBy must be a valid UUID"})
		}
		filter.CreatedBy = &owner
	}
	filter.Category = strings.TrimSpace(q.Get("category"))
	filter.Tag = strings.TrimSpace(q.Get("tag"))
	filter.Search = strings.TrimSpace(q.Get("q"))

	if len(errs) > 0 {
		return repositories.TodoFilter{}, errs
	}
	return filter, nil
}

// CompletedTodos godoc
// @Summary List completed todos
// @Tags Todos
// @Produce json
// @Success 200 {object} utils.Payload{data=[]models.TodoView}
// @Router /api/todos/completed [get]
func (h *Handler) CompletedTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := h.Todos.FindCompleted(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTodos(w, todos, h.Todos.Now())
}

// PendingTodos godoc
// @Summary List todos that are not completed
// @Tags Todos
// @Produce json
// @Success 200 {object} utils.Payload{data=[]models.TodoView}
// @Router /api/todos/pending [get]
func (h *Handler) PendingTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := h.Todos.FindPending(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTodos(w, todos, h.Todos.Now())
}

// DueSoonTodos godoc
// @Summary List incomplete todos due within the next days
// @Tags Todos
// @Produce json
// @Param days query int false "Window in days" default(7)
// @Success 200 {object} utils.Payload{data=[]models.TodoView}
// @Failure 400 {object} utils.Payload
// @Router /api/todos/due-soon [get]
func (h *Handler) DueSoonTodos(w http.ResponseWriter, r *http.Request) {
	days := services.DefaultDueSoonDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, models.ValidationErrors{{Field: "days", Reason: "days must be a positive integer"}})
			return
		}
		days = n
	}

	now := h.Todos.Now()
	todos, err := h.Todos.FindDueSoon(r.Context(), now, days)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTodos(w, todos, now)
}

// TodosByPriority godoc
// @Summary List todos with the given priority
// @Tags Todos
// @Produce json
// @Param priority path string true "low, medium or high"
// @Success 200 {object} utils.Payload{data=[]models.TodoView}
// @Failure 400 {object} utils.Payload
// @Router /api/todos/priority/{priority} [get]
func (h *Handler) TodosByPriority(w http.ResponseWriter, r *http.Request) {
	todos, err := h.Todos.FindByPriority(r.Context(), models.Priority(r.PathValue("priority")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTodos(w, todos, h.Todos.Now())
}

// GetTodo godoc
// @Summary Get a todo
// @Tags Todos
// @Produce json
// @Param id path string true "Todo id"
// @Success 200 {object} utils.Payload{data=models.TodoView}
// @Failure 404 {object} utils.Payload
// @Router /api/todos/{id} [get]
func (h *Handler) GetTodo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	todo, err := h.Todos.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTodo(w, todo, "")
}

// UpdateTodo godoc
// @Summary Partially update a todo
// @Description Only the supplied fields are validated and changed. A null dueDate clears it.
// @Tags Todos
// @Accept json
// @Produce json
// @Param id path string true "Todo id"
// @Param todo body models.TodoInput false "Fields to change"
// @Success 200 {object} utils.Payload{data=models.TodoView}
// @Failure 400 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /api/todos/{id} [patch]
func (h *Handler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var patch models.TodoPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		h.writeError(w, r, err)
		return
	}

	todo, err := h.Todos.Update(r.Context(), id, patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTodo(w, todo, "Todo updated")
}

// ToggleTodo godoc
// @Summary Flip the completed flag of a todo
// @Tags Todos
// @Produce json
// @Param id path string true "Todo id"
// @Success 200 {object} utils.Payload{data=models.TodoView}
// @Failure 404 {object} utils.Payload
// @Router /api/todos/{id}/toggle [patch]
func (h *Handler) ToggleTodo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	todo, err := h.Todos.Toggle(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeTodo(w, todo, "Todo toggled")
}

// DeleteTodo godoc
// @Summary Delete a todo
// @Tags Todos
// @Produce json
// @Param id path string true "Todo id"
// @Success 200 {object} utils.Payload
// @Failure 404 {object} utils.Payload
// @Router /api/todos/{id} [delete]
func (h *Handler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Todos.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: "Todo deleted",
	})
}

func (h *Handler) writeTodo(w http.ResponseWriter, todo *models.Todo, message string) {
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Message: message,
		Data:    todo.View(h.Todos.Now()),
	})
}

// writeTodos renders derived fields against now.
func (h *Handler) writeTodos(w http.ResponseWriter, todos []models.Todo, now time.Time) {
	utils.JSONResponse(w, http.StatusOK, utils.Payload{
		Success: true,
		Data:    models.TodoViews(todos, now),
		Count:   utils.CountOf(len(todos)),
	})
}
