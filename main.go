package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}

// exitOnError is a variable so tests can intercept the exit.
var exitOnError = func(err error) {
	printError(err)
	os.Exit(1)
}
