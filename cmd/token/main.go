// Command token mints API bearer tokens for a user id, or prints a fresh SECRET_KEY.
// Interactive login is handled by the web frontend; this is for scripts and operators.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/pkg/utils"
)

func main() {
	var (
		userID    string
		ttl       time.Duration
		newSecret bool
	)
	flag.StringVar(&userID, "user", "", "user id to issue the token for")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	flag.BoolVar(&newSecret, "new-secret", false, "print a random SECRET_KEY and exit")
	flag.Parse()

	if newSecret {
		key, err := utils.GenerateSecretKey()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	_ = godotenv.Load()
	cfg := config.LoadConfig()
	if cfg.SecretKey == "" {
		fmt.Fprintln(os.Stderr, "SECRET_KEY is not set")
		os.Exit(1)
	}

	token, err := utils.GenerateToken(cfg.SecretKey, userID, ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
