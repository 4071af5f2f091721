package main

import "github.com/merit-works/merit/internal/cli"

func main() {
	cli.Execute()
}
