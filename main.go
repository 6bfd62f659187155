package main

import "github.com/AvaProtocol/sponsored-bundle/cmd"

func main() {
	cmd.Execute()
}
