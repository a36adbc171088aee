package main

import (
	"os"

	"horse.fit/stash/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
