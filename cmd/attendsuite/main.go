package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/phillip-england/attendsuite/internal/attendcli"
)

func main() {
	if err := attendcli.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, attendcli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr)
			attendcli.PrintUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
