// Command hash-token prints the bcrypt hash of an operator API token, for use
// as STOCKSYNC_API_TOKEN_HASH.
package main

import (
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: hash-token <token>")
		os.Exit(2)
	}
	hash, err := utils.HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}
