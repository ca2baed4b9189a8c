package main

import (
	"github.com/framescope/framescope/cmd/framescope/commands"
)

func main() {
	commands.Execute()
}
