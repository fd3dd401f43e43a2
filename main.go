package main

import "github.com/jmehdipour/email-gateway/cmd"

func main() {
	cmd.Execute()
}
