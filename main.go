package main

import "github.com/andresmejia3/hush/cmd"

func main() {
	cmd.Execute()
}
