package web

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/go-errors/errors"

	"daygrid/internal/buckets"
	"daygrid/internal/calendar"
	"daygrid/internal/model"
	"daygrid/internal/session"
	"daygrid/internal/store"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	indexTemplate    = template.Must(template.ParseFS(templateFS, "templates/index.tmpl"))
	calendarTemplate = template.Must(template.ParseFS(templateFS, "templates/calendar.tmpl"))
	editTemplate     = template.Must(template.ParseFS(templateFS, "templates/edit.tmpl"))
	settingsTemplate = template.Must(template.ParseFS(templateFS, "templates/settings.tmpl"))
)

// completedShown is how many completed tasks a bucket shows before the
// "show all" link; visibleChips is the per-day chip cap on the calendar.
const (
	completedShown = 3
	visibleChips   = 5
)

type Server struct {
	sessions *session.Manager
}

func NewServer(sessions *session.Manager) *Server {
	return &Server{sessions: sessions}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.indexHandler)
	mux.HandleFunc("/calendar", s.calendarHandler)
	mux.HandleFunc("/settings", s.settingsHandler)
	mux.HandleFunc("/settings/username", s.usernameHandler)
	mux.HandleFunc("/tasks", s.createHandler)
	mux.HandleFunc("/tasks/", s.taskHandler)
	mux.HandleFunc("/api/tasks", s.apiTasksHandler)
	return mux
}

func (s *Server) store() store.Store {
	return s.sessions.Current().Store
}

type taskView struct {
	Task    model.Task
	Due     string
	Overdue bool
}

type bucketView struct {
	Priority       string
	Active         []taskView
	Completed      []taskView
	CompletedTotal int
	Truncated      bool
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}

	tasks, err := s.store().Tasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	showAll := r.URL.Query().Get("all") == "1"
	now := time.Now()
	partition := buckets.Partition(tasks)

	views := make([]bucketView, 0, len(model.Priorities))
	for _, priority := range model.Priorities {
		completed := partition.Completed(priority)
		view := bucketView{
			Priority:       priority.String(),
			Active:         toViews(partition.Active(priority), now),
			CompletedTotal: len(completed),
		}
		if !showAll && len(completed) > completedShown {
			completed = completed[:completedShown]
			view.Truncated = true
		}
		view.Completed = toViews(completed, now)
		views = append(views, view)
	}

	data := struct {
		Username string
		Total    int
		Buckets  []bucketView
		ShowAll  bool
	}{Username: s.store().Username(), Total: len(tasks), Buckets: views, ShowAll: showAll}

	if err := indexTemplate.Execute(w, data); err != nil {
		writeError(w, http.StatusInternalServerError, err)
	}
}

func toViews(tasks []model.Task, now time.Time) []taskView {
	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		view := taskView{Task: task, Overdue: task.Overdue(now)}
		if task.DueAt != nil {
			view.Due = task.DueAt.Format("2006-01-02")
		}
		views = append(views, view)
	}
	return views
}

type dayCell struct {
	Day      int
	Key      string
	InMonth  bool
	Today    bool
	Tasks    []taskView
	More     int
	Expanded bool
}

func (s *Server) calendarHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	ref := now
	if value := strings.TrimSpace(r.URL.Query().Get("month")); value != "" {
		parsed, err := time.Parse("2006-01", value)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid month %q", value))
			return
		}
		ref = parsed
	}
	expanded := r.URL.Query().Get("expand")

	tasks, err := s.store().Tasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	byDay := calendar.GroupByDay(tasks)

	days := calendar.Days(ref)
	cells := make([]dayCell, 0, len(days))
	for _, day := range days {
		key := calendar.DateKey(day)
		cell := dayCell{
			Day:      day.Day(),
			Key:      key,
			InMonth:  day.Month() == ref.Month(),
			Today:    key == calendar.DateKey(now),
			Expanded: key == expanded,
		}
		dayTasks := byDay[key]
		if !cell.Expanded && len(dayTasks) > visibleChips {
			cell.More = len(dayTasks) - visibleChips
			dayTasks = dayTasks[:visibleChips]
		}
		cell.Tasks = toViews(dayTasks, now)
		cells = append(cells, cell)
	}

	weeks := make([][]dayCell, 0, len(cells)/7)
	for i := 0; i < len(cells); i += 7 {
		weeks = append(weeks, cells[i:i+7])
	}

	data := struct {
		Username string
		Month    string
		MonthKey string
		Prev     string
		Next     string
		Weeks    [][]dayCell
	}{
		Username: s.store().Username(),
		Month:    ref.Format("January 2006"),
		MonthKey: ref.Format("2006-01"),
		Prev:     ref.AddDate(0, -1, 0).Format("2006-01"),
		Next:     ref.AddDate(0, 1, 0).Format("2006-01"),
		Weeks:    weeks,
	}

	if err := calendarTemplate.Execute(w, data); err != nil {
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) settingsHandler(w http.ResponseWriter, r *http.Request) {
	data := struct{ Username string }{Username: s.store().Username()}
	if err := settingsTemplate.Execute(w, data); err != nil {
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) usernameHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if _, err := s.sessions.Switch(r.FormValue("username")); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) createHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	input, err := inputFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	if _, err := s.store().Add(r.Context(), input); err != nil {
		writeStoreError(w, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) taskHandler(w http.ResponseWriter, r *http.Request) {
	id, action, err := parseTaskPath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	switch {
	case action == "edit" && r.Method == http.MethodGet:
		s.editFormHandler(w, r, id)
	case action == "toggle" && r.Method == http.MethodPost:
		if _, err := s.store().ToggleComplete(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		http.Redirect(w, r, redirectTarget(r), http.StatusSeeOther)
	case action == "delete" && r.Method == http.MethodPost:
		if err := s.store().Delete(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		http.Redirect(w, r, redirectTarget(r), http.StatusSeeOther)
	case action == "" && r.Method == http.MethodPost:
		input, err := inputFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		if _, err := s.store().Update(r.Context(), id, input); err != nil {
			writeStoreError(w, err)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) editFormHandler(w http.ResponseWriter, r *http.Request, id string) {
	tasks, err := s.store().Tasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	for _, task := range tasks {
		if task.ID != id {
			continue
		}
		due := ""
		if task.DueAt != nil {
			due = task.DueAt.Format("2006-01-02")
		}
		data := struct {
			Task model.Task
			Due  string
		}{Task: task, Due: due}
		if err := editTemplate.Execute(w, data); err != nil {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	writeError(w, http.StatusNotFound, store.ErrNotFound)
}

type apiTask struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Completed bool       `json:"completed"`
	Priority  string     `json:"priority"`
	DueAt     *time.Time `json:"due_at"`
	CreatedAt time.Time  `json:"created_at"`
	Overdue   bool       `json:"overdue"`
}

func (s *Server) apiTasksHandler(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store().Tasks(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	now := time.Now()
	payload := make([]apiTask, 0, len(tasks))
	for _, task := range tasks {
		payload = append(payload, apiTask{
			ID:        task.ID,
			Title:     task.Title,
			Completed: task.Completed,
			Priority:  task.Priority.String(),
			DueAt:     task.DueAt,
			CreatedAt: task.CreatedAt,
			Overdue:   task.Overdue(now),
		})
	}
	writeJSON(w, payload)
}

func inputFromRequest(r *http.Request) (store.TaskInput, error) {
	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		return store.TaskInput{}, store.ErrEmptyTitle
	}

	priority, err := model.ParsePriority(r.FormValue("priority"))
	if err != nil {
		return store.TaskInput{}, err
	}

	var dueAt *time.Time
	if value := strings.TrimSpace(r.FormValue("due")); value != "" {
		parsed, err := time.Parse("2006-01-02", value)
		if err != nil {
			return store.TaskInput{}, fmt.Errorf("invalid due date %q", value)
		}
		dueAt = &parsed
	}

	return store.TaskInput{Title: title, Priority: priority, DueAt: dueAt}, nil
}

// parseTaskPath splits /tasks/{id}[/{action}] into id and action.
func parseTaskPath(path string) (string, string, error) {
	rest := strings.TrimPrefix(path, "/tasks/")
	if rest == path || rest == "" {
		return "", "", fmt.Errorf("missing id")
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		return parts[0], parts[1], nil
	}
	return "", "", fmt.Errorf("invalid path")
}

func redirectTarget(r *http.Request) string {
	if target := r.FormValue("back"); strings.HasPrefix(target, "/") {
		return target
	}
	return "/"
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case goerrors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case goerrors.Is(err, store.ErrEmptyTitle):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(err.Error()))
}
