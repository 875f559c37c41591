package main

import (
	"log"

	"github.com/luckpoint/my-cafe-demo/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("cafe service failed: %v", err)
	}
}
