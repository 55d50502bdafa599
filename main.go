package main

import "github.com/overbid/liveshow/cmd"

func main() {
	cmd.Execute()
}
