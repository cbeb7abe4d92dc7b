package main

import (
	"github.com/neekly/neekly/internal/cli"
)

func main() {
	cli.Execute()
}
