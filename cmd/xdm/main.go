package main

import "github.com/JaymoCodes/xdm/cmd/xdm/cmd"

func main() {
	cmd.Execute()
}
