package main

import (
	_ "time/tzdata"

	"market-resolver/internal/cli"
)

func main() {
	cli.Execute()
}
