package main

import (
	"os"

	"github.com/eternnoir/llmcuts/cmd/llmcuts/cmd"
	"github.com/eternnoir/llmcuts/pkg/logger"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("Application execution failed")
		_ = logger.Close()
		os.Exit(1)
	}
	_ = logger.Close()
}
