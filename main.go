package main

import (
	"os"

	"github.com/dealseek/ma-pilot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
