package main

import "github.com/scanprep/scanprep/cmd/scanprep/cmd"

func main() {
	cmd.Execute()
}
