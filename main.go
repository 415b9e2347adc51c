package main

import (
	"github.com/harichselvamc/peertopeer/cmd"
	"github.com/harichselvamc/peertopeer/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
