package main

import (
	"context"
	"os"

	"github.com/desertthunder/synchronic/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{Logger: logger})

	if err := newApp(runner).Run(context.Background(), os.Args); err != nil {
		logger.Fatal("application error", "err", err)
	}
}
