// Package ui holds the console styling used by the CLI.
//
// [Palette] wraps lipgloss styles for titles, success and error marks, warnings and help text.
// [PrintProgress] renders the sync engine's progress channel.
package ui
