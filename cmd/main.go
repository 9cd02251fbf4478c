package main

import (
	"os"

	"github.com/vd4-dee/quiz/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
