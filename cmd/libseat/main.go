package main

import "github.com/example/libseat/cmd"

func main() {
	cmd.Execute()
}
