package ui

import (
	"fmt"
	"io"

	"github.com/desertthunder/synchronic/internal/tasks"
)

// PrintProgress writes each update to w until updates is closed, then closes done.
//
// Run it in its own goroutine next to [tasks.Engine.Run] and wait on done before printing anything else.
func PrintProgress(w io.Writer, p *Palette, updates <-chan tasks.ProgressUpdate, done chan<- struct{}) {
	defer close(done)

	for update := range updates {
		switch update.Phase {
		case tasks.FetchLibrary:
			fmt.Fprintf(w, "%s %s\n", p.Title("→"), update.Message)
		case tasks.SearchTitles:
			fmt.Fprintf(w, "   %s\n", update.Message)
		case tasks.FlushUpdates:
			fmt.Fprintf(w, "\n%s %s\n", p.Title("→"), update.Message)
		case tasks.RecordHistory:
			fmt.Fprintf(w, "%s\n", p.Help(update.Message))
		}
	}
}
