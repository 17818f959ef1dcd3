package main

import "github.com/ngld/distbuild/cmd"

func main() {
	cmd.Execute()
}
