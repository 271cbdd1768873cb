package main

import "codepilot/internal/cli"

func main() {
	cli.Execute()
}
