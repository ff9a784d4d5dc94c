package main

import "bikeshare/internal/cli"

func main() {
	cli.Execute()
}
