package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stemsi/learntrack-backend/internal/config"
	"github.com/stemsi/learntrack-backend/internal/logger"
	"github.com/stemsi/learntrack-backend/internal/service"
)

// issue-token mints a learner JWT signed with JWT_SECRET for local testing
// of the API and the telemetry websocket.
func main() {
	var userID string
	var ttl time.Duration
	flag.StringVar(&userID, "user", "", "Learner id (prompted when empty)")
	flag.DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if userID == "" {
		fmt.Print("Enter Learner ID: ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		userID = strings.TrimSpace(line)
	}
	if userID == "" {
		fmt.Println("Error: Learner ID is required")
		os.Exit(1)
	}

	token, err := service.NewAuthService(cfg.JWTSecret).IssueToken(userID, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}
	fmt.Println(token)
}
