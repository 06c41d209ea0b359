package main

import (
	"fmt"
	"os"

	"github.com/sandeepkv93/weapp-session-service/internal/tools/sessionctl"
)

func main() {
	if err := sessionctl.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
