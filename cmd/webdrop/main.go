package main

import (
	"github.com/charmbracelet/log"

	"github.com/Maolipeng/web-drop/internal/cmd"
	"github.com/Maolipeng/web-drop/internal/logging"
)

func main() {
	// Keep log lines out of the session view unless LOG_LEVEL asks for them.
	logging.Init("", log.ErrorLevel)
	cmd.Execute()
}
