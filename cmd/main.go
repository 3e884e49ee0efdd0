package main

import "github.com/cwrk-planet/live-service/internal/cli"

func main() {
	cli.Execute()
}
