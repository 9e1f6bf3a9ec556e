package main

import "github.com/emaland/lambdactl/cmd"

func main() {
	cmd.Execute()
}
