package main

import (
	"github.com/joho/godotenv"

	"github.com/projectfr33d0m2025/whispertype-sub000/internal/cli"
)

func main() {
	// A missing .env file is the normal case.
	_ = godotenv.Load()

	cli.Execute()
}
