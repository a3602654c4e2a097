package authlink

import (
	"context"
	"log"
)

// ConsoleSender is a development sender that logs verification links to the console
type ConsoleSender struct{}

func (c *ConsoleSender) SendVerificationRequest(ctx context.Context, req VerificationRequest) error {
	log.Printf("\n=== EMAIL: Sign in ===")
	log.Printf("To: %s", req.Identifier)
	log.Printf("Subject: Sign in to your account")
	log.Printf("Body: Sign in by clicking: %s", req.URL)
	log.Printf("Expires: %s", req.Expires.Format("2006-01-02 15:04:05 MST"))
	log.Printf("======================\n")
	return nil
}
