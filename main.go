package main

import "github.com/jackc/pagecheck/cmd"

func main() {
	cmd.Execute()
}
