package main

import (
	"os"

	"github.com/openfms/agvd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
