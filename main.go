package main

import "github.com/kris-hansen/redbiomctl/cmd"

func main() {
	cmd.Execute()
}
