package main

import (
	"fmt"
	"os"

	"github.com/zjy-dev/covfeed/cmd/covfeed/app"
	"github.com/zjy-dev/covfeed/internal/logger"
)

func main() {
	err := app.NewCovfeedCommand().Execute()
	_ = logger.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
