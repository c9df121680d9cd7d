// Package affordance derives the enabled and visible state of toolbar buttons
// and context-menu items from the active view and the current selection.
// Nothing here is stored; every call computes a fresh result.
package affordance

import (
	"github.com/JaymoCodes/xdm/internal/models"
)

// Button identifies a toolbar action button.
type Button int

const (
	ButtonOpenFile Button = iota
	ButtonOpenFolder
	ButtonPause
	ButtonResume
	ButtonDelete
)

// Buttons lists every toolbar action button in display order.
var Buttons = []Button{ButtonOpenFile, ButtonOpenFolder, ButtonPause, ButtonResume, ButtonDelete}

func (b Button) String() string {
	switch b {
	case ButtonOpenFile:
		return "open-file"
	case ButtonOpenFolder:
		return "open-folder"
	case ButtonPause:
		return "pause"
	case ButtonResume:
		return "resume"
	case ButtonDelete:
		return "delete"
	}
	return "unknown"
}

// MenuItem identifies a context-menu action.
type MenuItem int

// In-progress context menu.
const (
	MenuPause MenuItem = iota
	MenuResume
	MenuDelete
	MenuSaveAs
	MenuRefresh
	MenuShowProgress
	MenuCopyURL
	MenuProperties
	MenuRestart
	MenuSchedule
	MenuMoveToQueue
)

// Finished context menu.
const (
	MenuOpenFile MenuItem = iota + 100
	MenuOpenFolder
	MenuDeleteFinished
	MenuCopyFinishedURL
	MenuCopyFile
	MenuFinishedProperties
	MenuDownloadAgain
)

var (
	// InProgressMenu lists the items of the in-progress context menu.
	InProgressMenu = []MenuItem{
		MenuPause, MenuResume, MenuDelete, MenuSaveAs, MenuRefresh, MenuShowProgress,
		MenuCopyURL, MenuProperties, MenuRestart, MenuSchedule, MenuMoveToQueue,
	}
	// FinishedMenu lists the items of the finished context menu.
	FinishedMenu = []MenuItem{
		MenuOpenFile, MenuOpenFolder, MenuDeleteFinished, MenuCopyFinishedURL,
		MenuCopyFile, MenuFinishedProperties, MenuDownloadAgain,
	}
)

var menuNames = map[MenuItem]string{
	MenuPause:              "pause",
	MenuResume:             "resume",
	MenuDelete:             "delete",
	MenuSaveAs:             "save-as",
	MenuRefresh:            "refresh",
	MenuShowProgress:       "show-progress",
	MenuCopyURL:            "copy-url",
	MenuProperties:         "properties",
	MenuRestart:            "restart",
	MenuSchedule:           "schedule",
	MenuMoveToQueue:        "move-to-queue",
	MenuOpenFile:           "open",
	MenuOpenFolder:         "open-folder",
	MenuDeleteFinished:     "delete-downloads",
	MenuCopyFinishedURL:    "copy-url",
	MenuCopyFile:           "copy-file",
	MenuFinishedProperties: "properties",
	MenuDownloadAgain:      "download-again",
}

func (m MenuItem) String() string {
	if s, ok := menuNames[m]; ok {
		return s
	}
	return "unknown"
}

// ButtonState is the rendered state of one toolbar button.
type ButtonState struct {
	Enabled bool
	Visible bool
}

// Toolbar maps every toolbar button to its state.
type Toolbar map[Button]ButtonState

// Menu maps every item of one context menu to its enabled flag.
type Menu map[MenuItem]bool

// Input is everything the derivation looks at.
type Input struct {
	View models.View
	// Selected is the number of selected rows in the active view.
	Selected int
	// SingleActive reports, for a single in-progress selection, whether that entry is Active.
	SingleActive bool
}

// DeriveToolbar computes the toolbar for in.
func DeriveToolbar(in Input) Toolbar {
	t := make(Toolbar, len(Buttons))
	for _, b := range Buttons {
		t[b] = ButtonState{Visible: true}
	}

	if in.View == models.ViewInProgress {
		t.setVisible(ButtonOpenFile, false)
		t.setVisible(ButtonOpenFolder, false)
		if in.Selected > 0 {
			t.enable(ButtonDelete)
		}
		if in.Selected > 1 {
			t.enable(ButtonPause)
			t.enable(ButtonResume)
		} else if in.Selected == 1 {
			if in.SingleActive {
				t.enable(ButtonPause)
			} else {
				t.enable(ButtonResume)
			}
		}
		return t
	}

	t.setVisible(ButtonPause, false)
	t.setVisible(ButtonResume, false)
	if in.Selected > 0 {
		t.enable(ButtonDelete)
	}
	if in.Selected == 1 {
		t.enable(ButtonOpenFile)
		t.enable(ButtonOpenFolder)
	}
	return t
}

// DeriveInProgressMenu computes the in-progress context menu as it opens.
func DeriveInProgressMenu(selected int, singleActive bool) Menu {
	m := newMenu(InProgressMenu)
	m[MenuDelete] = true
	m[MenuSchedule] = true
	m[MenuMoveToQueue] = true

	switch {
	case selected > 1:
		m[MenuPause] = true
		m[MenuResume] = true
		m[MenuShowProgress] = true
	case selected == 1:
		m[MenuShowProgress] = true
		m[MenuCopyURL] = true
		m[MenuSaveAs] = true
		m[MenuRefresh] = true
		m[MenuProperties] = true
		if singleActive {
			m[MenuPause] = true
		} else {
			m[MenuResume] = true
			m[MenuRestart] = true
		}
	}
	return m
}

// DeriveFinishedMenu computes the finished context menu as it opens.
// Bulk actions other than delete are not offered.
func DeriveFinishedMenu(selected int) Menu {
	m := newMenu(FinishedMenu)
	m[MenuDeleteFinished] = true
	if selected == 1 {
		for k := range m {
			m[k] = true
		}
	}
	return m
}

// Enabled lists the enabled items of m in menu order.
func (m Menu) Enabled(order []MenuItem) []MenuItem {
	var out []MenuItem
	for _, it := range order {
		if m[it] {
			out = append(out, it)
		}
	}
	return out
}

func newMenu(items []MenuItem) Menu {
	m := make(Menu, len(items))
	for _, it := range items {
		m[it] = false
	}
	return m
}

func (t Toolbar) enable(b Button) {
	s := t[b]
	s.Enabled = true
	t[b] = s
}

func (t Toolbar) setVisible(b Button, v bool) {
	s := t[b]
	s.Visible = v
	t[b] = s
}
