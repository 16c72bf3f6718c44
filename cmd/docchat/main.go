// Command docchat answers questions about a document collection. It serves
// the HTTP API and offers CLI commands to ingest documents and ask questions.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/54b3r/docchat-go/cmd/docchat/commands"
)

func main() {
	if err := commands.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
