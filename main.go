// retsh - a remote shell spoken over an anonymous overlay network.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"retsh/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "retsh: %v\n", err)
		os.Exit(1)
	}
}
