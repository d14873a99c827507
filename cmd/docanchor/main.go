package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgallion1/docanchor/internal/cli"
	"github.com/jessevdk/go-flags"
)

func main() {
	err := cli.Run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if err == nil {
		return
	}
	var ferr *flags.Error
	if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
		fmt.Fprintln(os.Stdout, ferr.Message)
		return
	}
	fmt.Fprintln(os.Stderr, "docanchor:", err)
	os.Exit(1)
}
