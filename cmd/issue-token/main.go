// Command issue-token mints a student token signed with JWT_SECRET. The
// course app issues these in production; this tool is for local testing.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/service"
)

func main() {
	studentID := flag.String("student", "", "Student ID to embed in the token")
	ttl := flag.Duration("ttl", 12*time.Hour, "Token lifetime")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if *studentID == "" {
		log.Fatal().Msg("-student is required")
	}

	token, err := service.NewAuthService(cfg.JWTSecret).IssueStudentToken(*studentID, *ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}
	fmt.Println(token)
}
