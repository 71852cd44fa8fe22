package main

import (
	"os"

	"github.com/GoMultiAuth/GoMultiAuth/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
