package main

import "sweepq/cmd"

func main() {
	cmd.Execute()
}
