// Package fixtures holds the identities and provider values shared by the
// auth, exchange and task tests.
package fixtures

const (
	// Subject is the owner of the primary test identity.
	Subject = "0f0c2b8e-6c1a-4f4e-9f52-1d7c1b0a1111"

	// OtherSubject owns the tasks that Subject must never see.
	OtherSubject = "7a9d1c3e-22b4-4d0f-8a61-5e2f9c0b2222"

	// ClientID is the app client the test tokens are issued to; it is
	// also the expected audience.
	ClientID = "4hq2kd0example7client"

	// ClientSecret authenticates ClientID at the token endpoint.
	ClientSecret = "s3cr3t-client-value"

	// PoolID is a region-prefixed user pool id.
	PoolID = "eu-north-1_AbCdEfGhI"

	// Domain is the hosted UI domain used by exchange tests.
	Domain = "https://zeronote.auth.eu-north-1.amazoncognito.com"

	// RedirectURI is the registered callback of the test client.
	RedirectURI = "https://app.zeronote.test/callback"

	// Verifier is a 43-character PKCE code verifier.
	Verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	// Code is an authorization code the fake token endpoint accepts.
	Code = "authz-code-0001"
)
