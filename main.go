package main

import "github.com/kvreeken/usbnor/cmd"

func main() {
	cmd.Execute()
}
