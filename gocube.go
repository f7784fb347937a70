package main

import "github.com/nci/gocube/cmd"

func main() {
	cmd.Execute()
}
