package main

import (
	"context"
	"os"

	"github.com/small-frappuccino/discordstate/pkg/log"
)

// main is the entry point of the discordstate binary.
func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.ErrorLoggerRaw().Error("Fatal", "err", err)
		os.Exit(1)
	}
}
