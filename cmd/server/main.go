package main

import (
	"log"

	"hrportal/internal/app/server"
)

func main() {
	if err := server.Run(); err != nil {
		log.Fatal(err)
	}
}
