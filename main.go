package main

import "mangasync/cmd"

func main() {
	cmd.Execute()
}
