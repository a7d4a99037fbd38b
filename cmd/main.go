package main

import "github.com/example/ytfetch/internal/cli"

func main() {
	cli.Execute()
}
