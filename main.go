package main

import "econwatch/cmd"

func main() {
	cmd.Execute()
}
