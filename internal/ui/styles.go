package ui

import "github.com/charmbracelet/lipgloss"

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
	colorWarning   = lipgloss.Color("214") // Orange
)

// SampleCard frames the text under review.
var SampleCard = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(1, 2)

// SampleText style for the sample body.
var SampleText = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255"))

// HeaderStyle for the task name line.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// SelectedClass style for the highlighted class row.
var SelectedClass = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalClass style for other class rows.
var NormalClass = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// ClassIndex style for the 1-9 shortcut digit.
var ClassIndex = lipgloss.NewStyle().
	Foreground(colorSecondary)

// LabelMark style for the check next to the current label.
var LabelMark = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// Confidence style for the numeric score.
var Confidence = lipgloss.NewStyle().
	Foreground(colorMuted)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// WorkerBusy style for the estimation worker indicator while active.
var WorkerBusy = lipgloss.NewStyle().
	Foreground(colorWarning)

// WorkerIdle style for the estimation worker indicator while idle.
var WorkerIdle = lipgloss.NewStyle().
	Foreground(colorSuccess)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196")).
	Bold(true).
	Padding(0, 1)

// NoticeStyle for transient navigation hints.
var NoticeStyle = lipgloss.NewStyle().
	Foreground(colorWarning).
	Padding(0, 1)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)

// DebugPanel frames the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.NormalBorder()).
	BorderForeground(colorMuted).
	Padding(1, 2)

// DebugHeaderStyle for section headers in the debug overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)
