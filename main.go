package main

import "github.com/fakeyudi/parley/cmd"

func main() {
	cmd.Execute()
}
