package main

import "github.com/filer/filer/cmd"

func main() {
	cmd.Execute()
}
