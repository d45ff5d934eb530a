package main

import (
	"fmt"
	"os"

	"github.com/g2melody/memberauth/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "memberauth: %v\n", err)
		os.Exit(1)
	}
}
