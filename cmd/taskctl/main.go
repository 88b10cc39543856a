package main

import (
	"os"

	"github.com/Ken-Obieze/travel-tasks/cmd/taskctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
