package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is expected outside local development
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
