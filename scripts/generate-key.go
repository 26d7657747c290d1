// Package main prints a fresh connection token key in the form expected by
// game.connection_token_key. The same key must be configured on the game
// servers that open the tokens.
package main

import (
	"encoding/base64"
	"fmt"
	"log"

	"github.com/digitalpulse/tsom-api/internal/crypto"
)

func main() {
	key, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}

	encoded := base64.StdEncoding.EncodeToString(key)

	fmt.Println("==========================================================")
	fmt.Println("Connection Token Key Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nKey: %s\n", encoded)
	fmt.Println("\nconfig.yaml:")
	fmt.Printf("\ngame:\n  connection_token_key: \"%s\"\n", encoded)
	fmt.Println("\nor environment:")
	fmt.Printf("\nTSOM_GAME_CONNECTION_TOKEN_KEY=%s\n", encoded)
	fmt.Println("==========================================================")
}
