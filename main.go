package main

import "cinethos/cmd"

func main() {
	cmd.Execute()
}
