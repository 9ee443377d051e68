package main

import "yaftp/cmd"

func main() {
	cmd.Execute()
}
