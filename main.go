package main

import "github.com/andresmejia3/pupilscan/cmd"

func main() {
	cmd.Execute()
}
