package main

import "github.com/nkoval/go-fit-bridge/services/bridge/cli"

func main() {
	cli.Execute()
}
