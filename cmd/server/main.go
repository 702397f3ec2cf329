package main

import (
	"fmt"
	"os"

	"github.com/bcnelson/simulation-deployer/internal/cli"
)

func main() {
	if err := cli.Execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
