package main

import "github.com/ValentinKolb/dStats/cmd"

func main() {
	cmd.Execute()
}
