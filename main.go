package main

import "github.com/KaramelBytes/wellrisk-cli/cmd"

func main() {
	cmd.Execute()
}
