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
			fmt.Fprintln(os.Stderr, "usage: attendsuite setup [--operator-token <token>] [--upload-dir uploads] [--force]")
			fmt.Fprintln(os.Stderr, "       attendsuite run")
			fmt.Fprintln(os.Stderr, "       attendsuite mark --sheet <key> --date <YYYY-MM-DD> --name <name>")
			fmt.Fprintln(os.Stderr, "       attendsuite import --sheet <key> --file <roster>")
			fmt.Fprintln(os.Stderr, "       attendsuite sample --out <file.xlsx> [--people 20] [--days 5] [--from YYYY-MM-DD]")
			fmt.Fprintln(os.Stderr, "       attendsuite backup --out <file.tar.xz>")
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
