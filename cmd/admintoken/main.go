package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"rainbow-register/internal/auth"
	"rainbow-register/internal/config"
)

// admintoken prints a signed operator token for the admin API
func main() {
	subject := flag.String("subject", "admin", "operator name recorded as reviewer")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	auth.InitJWT(cfg.App.JWTSecret)

	token, err := auth.GenerateToken(*subject, auth.RoleAdmin, *ttl)
	if err != nil {
		log.Fatalf("Failed to generate token: %v", err)
	}
	fmt.Println(token)
}
