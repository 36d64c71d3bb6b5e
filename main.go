package main

import "github.com/ankitprakashsharma/AI-Video-Creator/cmd"

func main() {
	cmd.Execute()
}
