// memctl reads, writes and injects into another process's memory.
package main

import "os"

func main() {
	os.Exit(Execute())
}
