package main

import (
	"context"
	"fmt"
	"os"

	"github.com/germanamz/playfield/cmd/playfield/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
