package main

import "github.com/harrisonrobin/famtasks/pkg/cli"

func main() {
	cli.Execute()
}
