package main

import "github.com/sciobjsdb/sodb/cmd"

func main() {
	cmd.Execute()
}
