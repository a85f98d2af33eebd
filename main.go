package main

import "genserver/cmd"

func main() {
	cmd.Run()
}
