package main

import "hrportal/internal/app/cli"

func main() {
	cli.Execute()
}
