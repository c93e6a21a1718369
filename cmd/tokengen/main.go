// Package main provides a CLI tool for generating test tokens for the Legitify API.
// These tokens use the dev signing key and will NOT work in production.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	jwttoken "legitify/internal/jwt_token"

	"github.com/google/uuid"
)

const (
	// Dev signing key - matches config.go when LEGITIFY_JWT_SIGNING_KEY is not set
	devSigningKey = "dev-secret-key-change-in-production"

	// Default values matching the dev config
	defaultIssuer   = "legitify"
	defaultAudience = "legitify-api"
	defaultTokenTTL = 15 * time.Minute
)

// roleDefaults match the organizations and wallet labels a devnet ledger boots with.
var roleDefaults = map[string]struct {
	org   string
	label string
	email string
}{
	"issuer":     {org: "orguniversity", label: "registrar", email: "registrar@university.example"},
	"employer":   {org: "orgemployer", label: "hr", email: "hr@employer.example"},
	"individual": {org: "orgindividual", label: "holder", email: "holder@example.com"},
}

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in"`
	Claims    map[string]any    `json:"claims,omitempty"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	role := os.Args[1]
	switch role {
	case "help", "-h", "--help":
		printUsage()
		return
	}
	defaults, ok := roleDefaults[role]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown role: %s\n\n", role)
		printUsage()
		os.Exit(1)
	}

	cmd := flag.NewFlagSet(role, flag.ExitOnError)
	userID := cmd.String("user-id", "", "User ID (UUID). Generated if empty.")
	email := cmd.String("email", defaults.email, "Email claim")
	org := cmd.String("org", defaults.org, "Organization claim")
	label := cmd.String("label", defaults.label, "Wallet label claim")
	signingKey := cmd.String("key", devSigningKey, "HS256 signing key")
	ttl := cmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	jsonOutput := cmd.Bool("json", false, "Output as JSON")
	_ = cmd.Parse(os.Args[2:])

	generateToken(jwttoken.TokenSubject{
		UserID:        parseOrGenerateUUID(*userID, "user-id"),
		Email:         *email,
		Role:          role,
		Organization:  *org,
		IdentityLabel: *label,
	}, *signingKey, *ttl, *jsonOutput)
}

func printUsage() {
	fmt.Println(`tokengen - Generate test tokens for the Legitify API

WARNING: These tokens use the dev signing key and will NOT work in production.
         Only use for local development and testing.

Usage:
  tokengen <issuer|individual|employer> [flags]

Examples:
  # Token for the devnet university registrar
  tokengen issuer

  # Token for a specific holder
  tokengen individual -email alice@example.com -user-id "550e8400-e29b-41d4-a716-446655440000"

  # Employer token valid for one hour, as JSON
  tokengen employer -ttl 1h -json

Use "tokengen <role> -h" for more information about the flags.`)
}

func generateToken(subject jwttoken.TokenSubject, signingKey string, ttl time.Duration, jsonOutput bool) {
	svc := jwttoken.NewJWTService(signingKey, defaultIssuer, defaultAudience, ttl)

	token, err := svc.GenerateAccessToken(context.Background(), subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			Type:      "access_token",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"sub":   subject.UserID.String(),
				"email": subject.Email,
				"role":  subject.Role,
				"org":   subject.Organization,
				"label": subject.IdentityLabel,
			},
			Usage: map[string]string{
				"header": "Authorization: Bearer <token>",
			},
		})
		return
	}

	fmt.Println("Access Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Expires In:    %s\n", ttl)
	fmt.Printf("User ID:       %s\n", subject.UserID)
	fmt.Printf("Email:         %s\n", subject.Email)
	fmt.Printf("Role:          %s\n", subject.Role)
	fmt.Printf("Organization:  %s\n", subject.Organization)
	fmt.Printf("Wallet Label:  %s\n", subject.IdentityLabel)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://localhost:8080/me/credentials")
}

func parseOrGenerateUUID(input, fieldName string) uuid.UUID {
	if input == "" {
		return uuid.New()
	}
	parsed, err := uuid.Parse(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid %s UUID: %s\n", fieldName, input)
		os.Exit(1)
	}
	return parsed
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
