package main

import (
	"github.com/ocfl-archive/ocflkit/ocflkit/cmd"
)

func main() {
	cmd.Execute()
}
