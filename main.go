package main

import "github.com/andresmejia3/trackpose/cmd"

func main() {
	cmd.Execute()
}
