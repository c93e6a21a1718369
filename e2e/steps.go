package e2e

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/cucumber/godog"

	"legitify/internal/audit"
	"legitify/pkg/digest"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Background steps
	ctx.Step(`^the Legitify API is running$`, tc.apiIsRunning)
	ctx.Step(`^"([^"]*)" is an? (issuer|individual|employer)$`, tc.actorHasRole)
	ctx.Step(`^"([^"]*)" has signed in$`, tc.actorSignsIn)

	// Credential lifecycle steps
	ctx.Step(`^"([^"]*)" issues a credential to "([^"]*)" for document "([^"]*)"$`, tc.issueCredential)
	ctx.Step(`^"([^"]*)" (accepts|denies) the credential for document "([^"]*)"$`, tc.decideCredential)
	ctx.Step(`^"([^"]*)" revokes the credential for document "([^"]*)"$`, tc.revokeCredential)
	ctx.Step(`^"([^"]*)" reads the credential for document "([^"]*)"$`, tc.readCredential)
	ctx.Step(`^"([^"]*)" lists their credentials$`, tc.listCredentials)
	ctx.Step(`^"([^"]*)" holds an accepted credential for document "([^"]*)" issued by "([^"]*)"$`, tc.holdsAcceptedCredential)

	// Verification steps
	ctx.Step(`^"([^"]*)" verifies document "([^"]*)" owned by "([^"]*)"$`, tc.verifyDocument)
	ctx.Step(`^"([^"]*)" verifies a tampered copy of document "([^"]*)" owned by "([^"]*)"$`, tc.verifyTamperedDocument)

	// Request steps
	ctx.Step(`^I GET "([^"]*)" without authorization$`, tc.getWithoutAuth)
	ctx.Step(`^I POST to "([^"]*)" without authorization$`, tc.postWithoutAuth)

	// Assertion steps
	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, tc.responseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, tc.responseFieldShouldEqual)
	ctx.Step(`^the response field "([^"]*)" should be absent$`, tc.responseFieldShouldBeAbsent)
	ctx.Step(`^the response field "([^"]*)" should be the credential for document "([^"]*)"$`, tc.responseFieldIsCredential)
	ctx.Step(`^the response should list (\d+) documents?$`, tc.responseShouldListDocuments)
	ctx.Step(`^a "([^"]*)" event with outcome "([^"]*)" should have been published$`, tc.eventPublished)
	ctx.Step(`^no ledger sessions should remain open$`, tc.noOpenSessions)
}

func (tc *TestContext) apiIsRunning(ctx context.Context) error {
	if err := tc.Do("GET", "/health/live", nil, nil); err != nil {
		return err
	}
	return tc.responseStatusShouldBe(ctx, 200)
}

func (tc *TestContext) actorHasRole(ctx context.Context, name, role string) error {
	_, err := tc.AddActor(name, role)
	return err
}

// actorSignsIn makes any authenticated call so the principal is recorded.
func (tc *TestContext) actorSignsIn(ctx context.Context, name string) error {
	actor, err := tc.Actor(name)
	if err != nil {
		return err
	}
	if err := tc.Do("GET", "/credentials/unknown-id", actor, nil); err != nil {
		return err
	}
	if code := tc.LastResponse.StatusCode; code == 401 || code == 409 || code >= 500 {
		return fmt.Errorf("%s could not sign in: %s", name, tc.LastResponseBody)
	}
	return nil
}

func (tc *TestContext) documentBytes(name string) []byte {
	doc, ok := tc.Documents[name]
	if !ok {
		doc = []byte("%PDF-1.7 " + name)
		tc.Documents[name] = doc
	}
	return doc
}

func (tc *TestContext) credentialID(document string) (string, error) {
	id, ok := tc.CredentialIDs[document]
	if !ok {
		return "", fmt.Errorf("no credential issued for %q", document)
	}
	return id, nil
}

func (tc *TestContext) issueCredential(ctx context.Context, issuerName, ownerName, document string) error {
	issuer, err := tc.Actor(issuerName)
	if err != nil {
		return err
	}
	owner, err := tc.Actor(ownerName)
	if err != nil {
		return err
	}
	body := map[string]any{
		"ownerEmail":     owner.Email,
		"documentBase64": base64.StdEncoding.EncodeToString(tc.documentBytes(document)),
		"metadata":       map[string]string{"title": document},
	}
	if err := tc.Do("POST", "/credentials", issuer, body); err != nil {
		return err
	}
	if tc.LastResponse.StatusCode == 201 {
		id, err := tc.GetResponseField("id")
		if err != nil {
			return err
		}
		tc.CredentialIDs[document] = id.(string)
	}
	return nil
}

func (tc *TestContext) decideCredential(ctx context.Context, ownerName, decision, document string) error {
	owner, err := tc.Actor(ownerName)
	if err != nil {
		return err
	}
	id, err := tc.credentialID(document)
	if err != nil {
		return err
	}
	action := "accept"
	if decision == "denies" {
		action = "deny"
	}
	return tc.Do("POST", "/credentials/"+id+"/"+action, owner, nil)
}

func (tc *TestContext) revokeCredential(ctx context.Context, issuerName, document string) error {
	issuer, err := tc.Actor(issuerName)
	if err != nil {
		return err
	}
	id, err := tc.credentialID(document)
	if err != nil {
		return err
	}
	return tc.Do("POST", "/credentials/"+id+"/revoke", issuer, nil)
}

func (tc *TestContext) readCredential(ctx context.Context, name, document string) error {
	actor, err := tc.Actor(name)
	if err != nil {
		return err
	}
	id, err := tc.credentialID(document)
	if err != nil {
		return err
	}
	return tc.Do("GET", "/credentials/"+id, actor, nil)
}

func (tc *TestContext) listCredentials(ctx context.Context, name string) error {
	actor, err := tc.Actor(name)
	if err != nil {
		return err
	}
	return tc.Do("GET", "/me/credentials", actor, nil)
}

func (tc *TestContext) holdsAcceptedCredential(ctx context.Context, ownerName, document, issuerName string) error {
	if err := tc.actorSignsIn(ctx, ownerName); err != nil {
		return err
	}
	if err := tc.issueCredential(ctx, issuerName, ownerName, document); err != nil {
		return err
	}
	if err := tc.responseStatusShouldBe(ctx, 201); err != nil {
		return err
	}
	if err := tc.decideCredential(ctx, ownerName, "accepts", document); err != nil {
		return err
	}
	return tc.responseStatusShouldBe(ctx, 200)
}

func (tc *TestContext) verify(verifierName, ownerName string, document []byte) error {
	verifier, err := tc.Actor(verifierName)
	if err != nil {
		return err
	}
	owner, err := tc.Actor(ownerName)
	if err != nil {
		return err
	}
	body := map[string]string{
		"ownerEmail":     owner.Email,
		"documentBase64": base64.StdEncoding.EncodeToString(document),
	}
	return tc.Do("POST", "/credentials/verify", verifier, body)
}

func (tc *TestContext) verifyDocument(ctx context.Context, verifierName, document, ownerName string) error {
	return tc.verify(verifierName, ownerName, tc.documentBytes(document))
}

func (tc *TestContext) verifyTamperedDocument(ctx context.Context, verifierName, document, ownerName string) error {
	tampered := append([]byte{}, tc.documentBytes(document)...)
	tampered = append(tampered, ' ')
	return tc.verify(verifierName, ownerName, tampered)
}

func (tc *TestContext) getWithoutAuth(ctx context.Context, path string) error {
	return tc.Do("GET", path, nil, nil)
}

func (tc *TestContext) postWithoutAuth(ctx context.Context, path string) error {
	return tc.Do("POST", path, nil, map[string]any{})
}

func (tc *TestContext) responseStatusShouldBe(ctx context.Context, expectedStatus int) error {
	if tc.LastResponse.StatusCode != expectedStatus {
		return fmt.Errorf("expected status %d but got %d: %s", expectedStatus, tc.LastResponse.StatusCode, tc.LastResponseBody)
	}
	return nil
}

func (tc *TestContext) responseShouldContain(ctx context.Context, text string) error {
	if !tc.ResponseContains(text) {
		return fmt.Errorf("response does not contain %q\nResponse: %s", text, string(tc.LastResponseBody))
	}
	return nil
}

func (tc *TestContext) responseFieldShouldEqual(ctx context.Context, field, expectedValue string) error {
	actualValue, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(actualValue) != expectedValue {
		return fmt.Errorf("field %s: expected %s but got %v", field, expectedValue, actualValue)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldBeAbsent(ctx context.Context, field string) error {
	if value, err := tc.GetResponseField(field); err == nil {
		return fmt.Errorf("field %s: expected absent but got %v", field, value)
	}
	return nil
}

func (tc *TestContext) responseFieldIsCredential(ctx context.Context, field, document string) error {
	id, err := tc.credentialID(document)
	if err != nil {
		return err
	}
	return tc.responseFieldShouldEqual(ctx, field, id)
}

func (tc *TestContext) responseShouldListDocuments(ctx context.Context, count int) error {
	var resp struct {
		Documents []struct {
			ID   string `json:"id"`
			Hash string `json:"hash"`
		} `json:"documents"`
	}
	if err := json.Unmarshal(tc.LastResponseBody, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Documents) != count {
		return fmt.Errorf("expected %d documents but got %d: %s", count, len(resp.Documents), tc.LastResponseBody)
	}
	for _, d := range resp.Documents {
		for name, id := range tc.CredentialIDs {
			if d.ID == id && d.Hash != digest.SHA256Hex(tc.documentBytes(name)) {
				return fmt.Errorf("document %s carries hash %s", d.ID, d.Hash)
			}
		}
	}
	return nil
}

func (tc *TestContext) eventPublished(ctx context.Context, eventType, outcome string) error {
	if tc.Stack == nil {
		return godog.ErrSkip
	}
	for _, e := range tc.Stack.Events.ListByType(audit.EventType(eventType)) {
		if e.Outcome == outcome {
			return nil
		}
	}
	return fmt.Errorf("no %s event with outcome %q", eventType, outcome)
}

func (tc *TestContext) noOpenSessions(ctx context.Context) error {
	if tc.Stack == nil {
		return godog.ErrSkip
	}
	if open := tc.Stack.Manager.OpenSessions(); open != 0 {
		return fmt.Errorf("%d ledger sessions still open", open)
	}
	if open := tc.Stack.Network.OpenConnections(); open != 0 {
		return fmt.Errorf("%d devnet connections still open", open)
	}
	return nil
}
