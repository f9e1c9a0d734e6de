package main

import "github.com/peterzhang0216/mediagrab/cmd/mediagrab/cmd"

func main() {
	cmd.Execute()
}
