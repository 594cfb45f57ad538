package main

import "github.com/catflap/catflap/cmd"

func main() {
	cmd.Execute()
}
