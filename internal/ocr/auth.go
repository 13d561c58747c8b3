// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ocr

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/pdiddy/inkbridge/pkg/types"
)

// VisionScope is the OAuth scope requested for service-account credentials.
const VisionScope = "https://www.googleapis.com/auth/cloud-vision"

// NewHTTPClient returns the client a VisionClient should use. With
// service-account credentials configured it attaches OAuth access tokens to
// every request; otherwise it returns a plain client and the API key does the
// authenticating. base, when non-nil, carries the token requests.
func NewHTTPClient(ctx context.Context, cfg types.OCRConfig, base *http.Client) (*http.Client, error) {
	if !cfg.ServiceAccount() {
		if base != nil {
			return base, nil
		}
		return &http.Client{}, nil
	}
	data, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, VisionScope)
	if err != nil {
		return nil, fmt.Errorf("%w: loading Google credentials: %v", types.ErrInvalidConfig, err)
	}
	return oauth2.NewClient(ctx, creds.TokenSource), nil
}
