package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"

	"issuebroker/core"
)

func main() {
	admin := flag.Bool("admin", false, "generate an admin API key instead of an encryption key")
	flag.Parse()

	if *admin {
		log.Printf("🔑 Generating new admin API key...")
		apiKey, err := core.NewSecretKey("adm")
		if err != nil {
			log.Fatalf("❌ Failed to generate admin API key: %v", err)
		}
		fmt.Printf("Generated admin API key: %s\n", apiKey)
		log.Printf("✅ Successfully generated admin API key")
		return
	}

	log.Printf("🔑 Generating new encryption key...")
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("❌ Failed to generate encryption key: %v", err)
	}

	fmt.Printf("Generated encryption key: %s\n", base64.StdEncoding.EncodeToString(key))
	log.Printf("✅ Successfully generated encryption key - set it as ENCRYPTION_KEY")
}
