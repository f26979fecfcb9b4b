package main

import (
	"github.com/foomo/restoreserver/cmd"
)

func main() {
	cmd.Execute()
}
