// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pdiddy/inkbridge/internal/httputil"
)

// visionAPIBase is the Cloud Vision annotate endpoint. Config can override it
// per client; tests point it at an httptest server.
const visionAPIBase = "https://vision.googleapis.com/v1/images:annotate"

// VisionClient calls Google Cloud Vision document text detection. With an
// APIKey the key is sent as a query parameter; without one Client must
// authenticate the request itself (see NewHTTPClient).
type VisionClient struct {
	Client   *http.Client
	APIKey   string
	Endpoint string
}

type visionRequest struct {
	Requests []visionImageRequest `json:"requests"`
}

type visionImageRequest struct {
	Image    visionImage     `json:"image"`
	Features []visionFeature `json:"features"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

// Recognize runs one annotate request. An image with no detected text yields
// "" and no error. Non-2xx responses are *httputil.StatusError.
func (c *VisionClient) Recognize(ctx context.Context, image []byte) (string, error) {
	body, err := json.Marshal(visionRequest{Requests: []visionImageRequest{{
		Image:    visionImage{Content: base64.StdEncoding.EncodeToString(image)},
		Features: []visionFeature{{Type: "DOCUMENT_TEXT_DETECTION"}},
	}}})
	if err != nil {
		return "", fmt.Errorf("encoding Vision request: %w", err)
	}

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = visionAPIBase
	}
	reqURL := endpoint
	if c.APIKey != "" {
		reqURL += "?key=" + url.QueryEscape(c.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("Vision API request: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckResponse(resp, "Vision API"); err != nil {
		return "", err
	}

	var vr visionResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return "", fmt.Errorf("parsing Vision response: %w", err)
	}
	if len(vr.Responses) == 0 {
		return "", nil
	}
	r := vr.Responses[0]
	if r.Error != nil && r.Error.Message != "" {
		return "", fmt.Errorf("Vision API error %d: %s", r.Error.Code, r.Error.Message)
	}
	if r.FullTextAnnotation == nil {
		return "", nil
	}
	return r.FullTextAnnotation.Text, nil
}
