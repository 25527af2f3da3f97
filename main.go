package main

import "InstrCount/pkg/commands"

func main() {
	commands.Execute()
}
