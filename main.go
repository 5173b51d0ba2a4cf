package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/spigell/job-buddy/cmd"
)

func main() {
	// A .env file is optional; the real environment wins over it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("loading .env: %v", err)
	}

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
