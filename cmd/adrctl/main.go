// Package main provides adrctl, the command line front end of the dark
// pattern remover.
package main

func main() {
	Execute()
}
