package main

import "github.com/inkforge/inkforge/cmd"

func main() {
	cmd.Execute()
}
