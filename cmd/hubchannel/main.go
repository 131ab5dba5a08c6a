package main

import "github.com/thetatoken/hubchannel/cmd/hubchannel/cmd"

func main() {
	cmd.Execute()
}
