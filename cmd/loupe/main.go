package main

import "github.com/loupe-sh/loupe/cmd/loupe/commands"

func main() {
	commands.Execute()
}
