package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"

	"daygrid/internal/model"
	"daygrid/internal/session"
	"daygrid/internal/store"
)

const (
	viewHeader   = "header"
	viewFooter   = "footer"
	viewHigh     = "high"
	viewMedium   = "medium"
	viewLow      = "low"
	viewCalendar = "calendar"
	viewForm     = "form"
	viewUser     = "user"
	viewHelp     = "help"
)

var columnViews = []string{viewHigh, viewMedium, viewLow}

func columnPriority(name string) model.Priority {
	switch name {
	case viewHigh:
		return model.PriorityHigh
	case viewMedium:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

type UI struct {
	sessions *session.Manager
	gui      *gocui.Gui

	tasks       []model.Task
	columns     map[model.Priority][]model.Task
	selected    map[string]int
	focus       string
	unsubscribe func()

	calMonth     time.Time
	showCalendar bool

	form       *formState
	formEditor *formEditor

	userActive bool
	helpActive bool
	status     string
}

type formState struct {
	taskID string
	fields []formField
	index  int
}

type formEditor struct {
	ui *UI
}

func Run(sessions *session.Manager) error {
	gui, err := gocui.NewGui(gocui.NewGuiOpts{OutputMode: gocui.OutputNormal})
	if err != nil {
		return err
	}
	defer gui.Close()

	ui := newUI(sessions)
	ui.gui = gui
	ui.formEditor = &formEditor{ui: ui}
	gui.Mouse = false

	gui.SetManagerFunc(ui.layout)
	if err := ui.bindKeys(gui); err != nil {
		return err
	}
	if err := ui.attach(); err != nil {
		return err
	}
	defer ui.detach()

	if err := gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}

	return nil
}

func newUI(sessions *session.Manager) *UI {
	return &UI{
		sessions:     sessions,
		columns:      map[model.Priority][]model.Task{},
		selected:     map[string]int{},
		focus:        viewHigh,
		calMonth:     time.Now(),
		showCalendar: true,
	}
}

// attach subscribes to the current session's store. Snapshots arrive on
// arbitrary goroutines for the remote variant, so they are funneled
// through gui.Update.
func (u *UI) attach() error {
	u.detach()

	st := u.sessions.Current().Store
	cancel, err := st.Subscribe(func(tasks []model.Task) {
		if u.gui == nil {
			u.setTasks(tasks)
			return
		}
		u.gui.Update(func(*gocui.Gui) error {
			u.setTasks(tasks)
			return nil
		})
	})
	if err != nil {
		return err
	}
	u.unsubscribe = cancel
	return nil
}

func (u *UI) detach() {
	if u.unsubscribe != nil {
		u.unsubscribe()
		u.unsubscribe = nil
	}
}

func (u *UI) store() store.Store {
	return u.sessions.Current().Store
}

func (u *UI) setTasks(tasks []model.Task) {
	u.tasks = tasks
	u.columns = buildColumns(tasks)

	for _, name := range columnViews {
		column := u.columns[columnPriority(name)]
		if u.selected[name] >= len(column) {
			u.selected[name] = max(len(column)-1, 0)
		}
	}
}

func (u *UI) bindKeys(gui *gocui.Gui) error {
	if err := gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, u.quit); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'q', gocui.ModNone, u.quit); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'r', gocui.ModNone, u.reload); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'a', gocui.ModNone, u.addTask); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'e', gocui.ModNone, u.editTask); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'd', gocui.ModNone, u.deleteTask); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'x', gocui.ModNone, u.toggleDone); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'm', gocui.ModNone, u.toggleCalendar); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '[', gocui.ModNone, u.prevMonth); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", ']', gocui.ModNone, u.nextMonth); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", 'u', gocui.ModNone, u.openUserPrompt); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '?', gocui.ModNone, u.toggleHelp); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", gocui.KeyTab, gocui.ModNone, u.switchFocus); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '1', gocui.ModNone, u.focusColumn(viewHigh)); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '2', gocui.ModNone, u.focusColumn(viewMedium)); err != nil {
		return err
	}
	if err := gui.SetKeybinding("", '3', gocui.ModNone, u.focusColumn(viewLow)); err != nil {
		return err
	}
	for _, name := range columnViews {
		if err := gui.SetKeybinding(name, gocui.KeyArrowDown, gocui.ModNone, u.moveDown); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, 'j', gocui.ModNone, u.moveDown); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, gocui.KeyArrowUp, gocui.ModNone, u.moveUp); err != nil {
			return err
		}
		if err := gui.SetKeybinding(name, 'k', gocui.ModNone, u.moveUp); err != nil {
			return err
		}
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyEnter, gocui.ModNone, u.submitForm); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyEsc, gocui.ModNone, u.cancelForm); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyTab, gocui.ModNone, u.nextFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyBacktab, gocui.ModNone, u.prevFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyArrowDown, gocui.ModNone, u.nextFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewForm, gocui.KeyArrowUp, gocui.ModNone, u.prevFormField); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewUser, gocui.KeyEnter, gocui.ModNone, u.submitUserPrompt); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewUser, gocui.KeyEsc, gocui.ModNone, u.cancelUserPrompt); err != nil {
		return err
	}
	if err := gui.SetKeybinding(viewHelp, gocui.KeyEsc, gocui.ModNone, u.closeHelp); err != nil {
		return err
	}
	return gui.SetKeybinding(viewHelp, '?', gocui.ModNone, u.closeHelp)
}

func (u *UI) layout(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	if maxX <= 0 || maxY <= 0 {
		return nil
	}

	headerView, err := gui.SetView(viewHeader, 0, 0, maxX-1, 0, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	headerView.Frame = false
	u.renderHeader(headerView)

	footerY0 := max(maxY-2, 1)
	footerView, err := gui.SetView(viewFooter, 0, footerY0, maxX-1, maxY-1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	footerView.Frame = false
	footerView.FgColor = gocui.ColorDefault | gocui.AttrDim
	u.renderFooter(footerView)

	bodyTop := 1
	bodyBottom := footerY0 - 1
	if bodyBottom < bodyTop {
		return nil
	}

	calWidth := 0
	if u.showCalendar {
		calWidth = min(30, maxX/3)
	}
	columnsWidth := maxX - calWidth
	columnWidth := max(columnsWidth/3, 12)

	titles := map[string]string{viewHigh: "1 High", viewMedium: "2 Medium", viewLow: "3 Low"}
	colors := map[string]gocui.Attribute{
		viewHigh:   gocui.ColorRed,
		viewMedium: gocui.ColorYellow,
		viewLow:    gocui.ColorGreen,
	}

	now := time.Now()
	for i, name := range columnViews {
		x0 := i * columnWidth
		x1 := x0 + columnWidth - 1
		if i == len(columnViews)-1 {
			x1 = columnsWidth - 1
		}
		columnView, err := gui.SetView(name, x0, bodyTop, x1, bodyBottom, 0)
		if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		if goerrors.Is(err, gocui.ErrUnknownView) {
			columnView.Title = titles[name]
			columnView.TitleColor = colors[name]
		}
		applyViewStyle(columnView, u.focus == name)
		u.renderColumn(columnView, name, now)
	}

	if u.showCalendar {
		calView, err := gui.SetView(viewCalendar, columnsWidth, bodyTop, maxX-1, bodyBottom, 0)
		if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		if goerrors.Is(err, gocui.ErrUnknownView) {
			calView.Title = "Calendar [/]"
			calView.TitleColor = gocui.ColorCyan
		}
		u.renderCalendar(calView)
	} else {
		_ = gui.DeleteView(viewCalendar)
	}

	_, _ = gui.SetViewOnTop(viewHeader)
	_, _ = gui.SetViewOnTop(viewFooter)

	if u.form != nil {
		if err := u.showForm(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewForm)
	}

	if u.userActive {
		if err := u.showUserPrompt(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewUser)
	}

	if u.helpActive {
		if err := u.showHelp(gui); err != nil {
			return err
		}
	} else {
		_ = gui.DeleteView(viewHelp)
	}

	if gui.CurrentView() == nil {
		_, _ = gui.SetCurrentView(u.focus)
	}

	gui.Cursor = u.form != nil || u.userActive

	return nil
}

func applyViewStyle(view *gocui.View, focused bool) {
	if focused {
		view.FrameColor = gocui.ColorCyan
	} else {
		view.FrameColor = gocui.ColorDefault
	}
}

func (u *UI) renderHeader(view *gocui.View) {
	view.Clear()
	open := 0
	for _, task := range u.tasks {
		if !task.Completed {
			open++
		}
	}
	fmt.Fprintf(view, " daygrid — %s | %d open / %d total", u.sessions.Current().Username, open, len(u.tasks))
}

func (u *UI) renderFooter(view *gocui.View) {
	view.Clear()
	if u.status != "" {
		fmt.Fprintf(view, " %s\n", u.status)
	}
	fmt.Fprint(view, " a:add e:edit x:done d:delete u:user m:calendar [/]:month ?:help q:quit")
}

func (u *UI) renderColumn(view *gocui.View, name string, now time.Time) {
	view.Clear()
	column := u.columns[columnPriority(name)]
	selected := u.selected[name]
	for index, task := range column {
		prefix := "  "
		if u.focus == name && index == selected {
			prefix = "> "
		}
		fmt.Fprintf(view, "%s%s\n", prefix, formatTaskLine(task, now))
	}
}

func (u *UI) renderCalendar(view *gocui.View) {
	view.Clear()
	for _, line := range calendarLines(u.calMonth, u.tasks) {
		fmt.Fprintf(view, " %s\n", line)
	}
	entries := dueThisMonth(u.calMonth, u.tasks)
	if len(entries) > 0 {
		fmt.Fprintln(view)
		for _, entry := range entries {
			fmt.Fprintf(view, " %s\n", entry)
		}
	}
}

func (u *UI) quit(*gocui.Gui, *gocui.View) error {
	return gocui.ErrQuit
}

func (u *UI) reload(*gocui.Gui, *gocui.View) error {
	tasks, err := u.store().Tasks(context.Background())
	if err != nil {
		u.status = err.Error()
		return nil
	}
	u.setTasks(tasks)
	u.status = ""
	return nil
}

func (u *UI) switchFocus(gui *gocui.Gui, _ *gocui.View) error {
	for i, name := range columnViews {
		if name == u.focus {
			u.focus = columnViews[(i+1)%len(columnViews)]
			_, _ = gui.SetCurrentView(u.focus)
			return nil
		}
	}
	u.focus = viewHigh
	_, _ = gui.SetCurrentView(u.focus)
	return nil
}

func (u *UI) focusColumn(name string) func(*gocui.Gui, *gocui.View) error {
	return func(gui *gocui.Gui, _ *gocui.View) error {
		u.focus = name
		_, _ = gui.SetCurrentView(name)
		return nil
	}
}

func (u *UI) moveDown(*gocui.Gui, *gocui.View) error {
	column := u.columns[columnPriority(u.focus)]
	if u.selected[u.focus] < len(column)-1 {
		u.selected[u.focus]++
	}
	return nil
}

func (u *UI) moveUp(*gocui.Gui, *gocui.View) error {
	if u.selected[u.focus] > 0 {
		u.selected[u.focus]--
	}
	return nil
}

func (u *UI) selectedTask() (model.Task, bool) {
	column := u.columns[columnPriority(u.focus)]
	index := u.selected[u.focus]
	if index < 0 || index >= len(column) {
		return model.Task{}, false
	}
	return column[index], true
}

func (u *UI) addTask(*gocui.Gui, *gocui.View) error {
	u.form = &formState{fields: buildFormFields(nil)}
	return nil
}

func (u *UI) editTask(*gocui.Gui, *gocui.View) error {
	task, ok := u.selectedTask()
	if !ok {
		return nil
	}
	u.form = &formState{taskID: task.ID, fields: buildFormFields(&task)}
	return nil
}

func (u *UI) deleteTask(*gocui.Gui, *gocui.View) error {
	task, ok := u.selectedTask()
	if !ok {
		return nil
	}
	if err := u.store().Delete(context.Background(), task.ID); err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = ""
	return nil
}

func (u *UI) toggleDone(*gocui.Gui, *gocui.View) error {
	task, ok := u.selectedTask()
	if !ok {
		return nil
	}
	if _, err := u.store().ToggleComplete(context.Background(), task.ID); err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = ""
	return nil
}

func (u *UI) toggleCalendar(*gocui.Gui, *gocui.View) error {
	u.showCalendar = !u.showCalendar
	return nil
}

func (u *UI) prevMonth(*gocui.Gui, *gocui.View) error {
	u.calMonth = u.calMonth.AddDate(0, -1, 0)
	return nil
}

func (u *UI) nextMonth(*gocui.Gui, *gocui.View) error {
	u.calMonth = u.calMonth.AddDate(0, 1, 0)
	return nil
}

func (u *UI) toggleHelp(*gocui.Gui, *gocui.View) error {
	u.helpActive = !u.helpActive
	return nil
}

func (u *UI) closeHelp(gui *gocui.Gui, _ *gocui.View) error {
	u.helpActive = false
	_ = gui.DeleteView(viewHelp)
	_, _ = gui.SetCurrentView(u.focus)
	return nil
}

func (u *UI) showForm(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := min(60, maxX-4)
	height := len(u.form.fields) + 1
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2
	view, err := gui.SetView(viewForm, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Wrap = true
		view.Editable = true
		view.Editor = u.formEditor
	}
	if u.form.taskID != "" {
		view.Title = "Edit Task"
	} else {
		view.Title = "New Task"
	}
	view.Editable = true
	view.KeybindOnEdit = true
	view.Editor = u.formEditor
	u.renderForm(view)
	_, _ = gui.SetCurrentView(viewForm)
	return nil
}

func (u *UI) submitForm(gui *gocui.Gui, _ *gocui.View) error {
	if u.form == nil {
		return nil
	}

	input, err := parseFormFields(u.form.fields)
	if err != nil {
		u.status = err.Error()
		return nil
	}

	if u.form.taskID == "" {
		if _, err := u.store().Add(context.Background(), input); err != nil {
			u.status = err.Error()
			return nil
		}
	} else {
		if _, err := u.store().Update(context.Background(), u.form.taskID, input); err != nil {
			u.status = err.Error()
			return nil
		}
	}

	u.form = nil
	u.status = ""
	_ = gui.DeleteView(viewForm)
	_, _ = gui.SetCurrentView(u.focus)
	return nil
}

func (u *UI) cancelForm(gui *gocui.Gui, _ *gocui.View) error {
	u.form = nil
	_ = gui.DeleteView(viewForm)
	_, _ = gui.SetCurrentView(u.focus)
	return nil
}

func (u *UI) nextFormField(gui *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index < len(u.form.fields)-1 {
		u.form.index++
	}
	u.renderForm(view)
	return nil
}

func (u *UI) prevFormField(gui *gocui.Gui, view *gocui.View) error {
	if u.form == nil {
		return nil
	}
	if u.form.index > 0 {
		u.form.index--
	}
	u.renderForm(view)
	return nil
}

func (u *UI) renderForm(view *gocui.View) {
	if u.form == nil || view == nil {
		return
	}
	view.Clear()
	for index, field := range u.form.fields {
		prefix := "  "
		if index == u.form.index {
			prefix = "> "
		}
		fmt.Fprintf(view, "%s%s: %s\n", prefix, field.Label, field.Value)
	}
	label := u.form.fields[u.form.index].Label + ": "
	cursorX := len([]rune(label)) + len([]rune(u.form.fields[u.form.index].Value)) + 2
	view.SetCursor(cursorX, u.form.index)
}

func (e *formEditor) Edit(view *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	ui := e.ui
	if ui == nil || ui.form == nil || view == nil {
		return false
	}
	field := &ui.form.fields[ui.form.index]

	if isPriorityField(field.Label) {
		switch key {
		case gocui.KeyArrowRight, gocui.KeySpace:
			field.Value = nextPriority(field.Value)
		case gocui.KeyArrowLeft:
			field.Value = prevPriority(field.Value)
		}
		ui.renderForm(view)
		return true
	}

	switch key {
	case gocui.KeyBackspace, gocui.KeyBackspace2:
		runes := []rune(field.Value)
		if len(runes) > 0 {
			field.Value = string(runes[:len(runes)-1])
		}
	case gocui.KeySpace:
		field.Value += " "
	case gocui.KeyCtrlU:
		field.Value = ""
	}

	if ch != 0 && ch != '\n' && ch != '\r' && mod == 0 {
		field.Value += string(ch)
	}

	ui.renderForm(view)
	return true
}

func (u *UI) openUserPrompt(*gocui.Gui, *gocui.View) error {
	u.userActive = true
	return nil
}

func (u *UI) showUserPrompt(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	width := min(40, maxX-4)
	x0 := (maxX - width) / 2
	y0 := maxY/2 - 1
	view, err := gui.SetView(viewUser, x0, y0, x0+width, y0+2, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Switch User"
		view.Editable = true
		view.Wrap = true
		fmt.Fprint(view, u.sessions.Current().Username)
	}
	view.KeybindOnEdit = true
	_, _ = gui.SetCurrentView(viewUser)
	return nil
}

func (u *UI) submitUserPrompt(gui *gocui.Gui, view *gocui.View) error {
	username := strings.TrimSpace(view.Buffer())
	u.userActive = false
	_ = gui.DeleteView(viewUser)
	_, _ = gui.SetCurrentView(u.focus)

	if username == "" || username == u.sessions.Current().Username {
		return nil
	}

	if _, err := u.sessions.Switch(username); err != nil {
		u.status = err.Error()
		return nil
	}
	if err := u.attach(); err != nil {
		u.status = err.Error()
		return nil
	}
	u.status = "switched to " + username
	return nil
}

func (u *UI) cancelUserPrompt(gui *gocui.Gui, _ *gocui.View) error {
	u.userActive = false
	_ = gui.DeleteView(viewUser)
	_, _ = gui.SetCurrentView(u.focus)
	return nil
}

func (u *UI) showHelp(gui *gocui.Gui) error {
	lines := []string{
		"a  add task         e  edit task",
		"x  toggle done      d  delete task",
		"j/k  move           tab/1-3  focus column",
		"m  calendar panel   [ ]  prev/next month",
		"u  switch user      r  reload",
		"?  close help       q  quit",
	}
	maxX, maxY := gui.Size()
	width := min(46, maxX-4)
	height := len(lines) + 1
	x0 := (maxX - width) / 2
	y0 := (maxY - height) / 2
	view, err := gui.SetView(viewHelp, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	if goerrors.Is(err, gocui.ErrUnknownView) {
		view.Title = "Help"
		view.Wrap = true
	}
	view.Clear()
	for _, line := range lines {
		fmt.Fprintf(view, " %s\n", line)
	}
	_, _ = gui.SetCurrentView(viewHelp)
	return nil
}
