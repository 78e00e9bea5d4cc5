package main

import "github.com/lawchamber/reminderd/services/reminderd/cli"

func main() {
	cli.Execute()
}
