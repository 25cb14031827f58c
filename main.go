package main

import (
	"context"
	"fmt"
	"os"

	logger "github.com/Easy-Infra-Ltd/easy-logger"

	"github.com/Easy-Infra-Ltd/easy-safe-mode/src/cli"
)

func main() {
	log := logger.CreateLoggerFromEnv(nil, "blue").With("process", "easysafemode")

	if err := cli.Execute(context.Background(), log); err != nil {
		fmt.Fprintf(os.Stderr, "easy-safe-mode: %v\n", err)
		os.Exit(1)
	}
}
