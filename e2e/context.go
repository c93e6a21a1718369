package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	jwttoken "legitify/internal/jwt_token"
)

// Actor is a named caller with a fixed identity across a scenario.
type Actor struct {
	Name   string
	UserID uuid.UUID
	Email  string
	Role   string
	Token  string
}

// TestContext holds state between test steps
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	Stack            *Stack
	Tokens           *jwttoken.JWTService
	Actors           map[string]*Actor
	Documents        map[string][]byte
	CredentialIDs    map[string]string
	LastResponse     *http.Response
	LastResponseBody []byte
}

// NewTestContext creates a new test context
func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:       os.Getenv("BASE_URL"),
		HTTPClient:    &http.Client{Timeout: 10 * time.Second},
		Actors:        make(map[string]*Actor),
		Documents:     make(map[string][]byte),
		CredentialIDs: make(map[string]string),
	}
}

// Start boots an in-process stack unless BASE_URL points at a running server.
func (tc *TestContext) Start(ctx context.Context) error {
	if tc.BaseURL != "" {
		key := os.Getenv("LEGITIFY_JWT_SIGNING_KEY")
		if key == "" {
			key = "dev-secret-key-change-in-production"
		}
		tc.Tokens = jwttoken.NewJWTService(key, tokenIssuer, tokenAud, time.Hour)
		return nil
	}
	stack, err := StartStack(ctx)
	if err != nil {
		return err
	}
	tc.Stack = stack
	tc.Tokens = stack.Tokens
	tc.BaseURL = stack.Server.URL
	return nil
}

// Stop releases the in-process stack.
func (tc *TestContext) Stop() {
	if tc.Stack != nil {
		tc.Stack.Close()
	}
}

// AddActor registers name with role and mints its bearer token.
func (tc *TestContext) AddActor(name, role string) (*Actor, error) {
	member, ok := members[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	id := uuid.New()
	actor := &Actor{
		Name:   name,
		UserID: id,
		Email:  fmt.Sprintf("%s.%s@example.com", name, id.String()[:8]),
		Role:   role,
	}
	token, err := tc.Tokens.GenerateAccessToken(context.Background(), jwttoken.TokenSubject{
		UserID:        actor.UserID,
		Email:         actor.Email,
		Role:          role,
		Organization:  member.Organization,
		IdentityLabel: member.Labels[0],
	})
	if err != nil {
		return nil, err
	}
	actor.Token = token
	tc.Actors[name] = actor
	return actor, nil
}

// Actor returns a registered actor.
func (tc *TestContext) Actor(name string) (*Actor, error) {
	a, ok := tc.Actors[name]
	if !ok {
		return nil, fmt.Errorf("unknown actor %q", name)
	}
	return a, nil
}

// Do sends a request as actor (nil for anonymous) and stores the response.
func (tc *TestContext) Do(method, path string, actor *Actor, body any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != nil {
		req.Header.Set("Authorization", "Bearer "+actor.Token)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	return nil
}

// GetResponseField extracts a field from the JSON response
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data map[string]any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	value, ok := data[field]
	if !ok {
		return nil, fmt.Errorf("field %s not found in response", field)
	}

	return value, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	return strings.Contains(string(tc.LastResponseBody), text)
}
