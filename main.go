package main

import (
	"os"

	"github.com/JL710/workflowo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
