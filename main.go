package main

import "github.com/sadopc/autotrackr/internal/cli"

func main() {
	cli.Execute()
}
