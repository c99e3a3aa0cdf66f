// cmd/wordllm/main.go
package main

import (
	"os"

	"github.com/gaochaoqwe/wordllm/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
