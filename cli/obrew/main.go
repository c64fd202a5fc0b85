package main

import (
	"os"

	obrewcmder "github.com/dieharders/obrew-go/cmd/obrew"
)

func main() {
	cmd := obrewcmder.NewObrewCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
