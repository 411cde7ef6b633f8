package main

import (
	"github.com/terrorizer1980/jetstream/internal/cli"
)

func main() {
	cli.Execute()
}
