package gcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"image-discerner/internal/domain/discern"
	"image-discerner/internal/fusion"
	"image-discerner/internal/vision"
)

const (
	providerName    = "gcp_vision_rest"
	defaultEndpoint = "https://vision.googleapis.com/v1/images:annotate"
	cloudScope      = "https://www.googleapis.com/auth/cloud-platform"

	// Used to scale normalized vertices when the image size is unknown.
	fallbackWidth  = 800
	fallbackHeight = 600

	// The basic text detection API reports no per-word confidence.
	textBlockConfidence = 0.9
)

// Client calls the Cloud Vision REST API with a service account. Requests
// are authorized by an oauth2 token source that caches and refreshes the
// access token.
type Client struct {
	base       *http.Client
	httpClient *http.Client
	endpoint   string
	now        func() time.Time
}

type Option func(*Client)

// WithHTTPClient sets the client used for both the token exchange and the
// API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.base = hc }
}

func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// NewFromFile reads a service account key file and builds a client.
func NewFromFile(ctx context.Context, path string, opts ...Option) (*Client, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gcp credentials: %w", err)
	}
	return New(ctx, raw, opts...)
}

// New builds a client from service account key JSON. ctx scopes the token
// source and should outlive the client.
func New(ctx context.Context, credentialsJSON []byte, opts ...Option) (*Client, error) {
	cfg, err := google.JWTConfigFromJSON(credentialsJSON, cloudScope)
	if err != nil {
		return nil, fmt.Errorf("parse gcp credentials: %w", err)
	}

	c := &Client{
		base:     &http.Client{Timeout: 30 * time.Second},
		endpoint: defaultEndpoint,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	c.httpClient = oauth2.NewClient(ctx, cfg.TokenSource(ctx))
	c.httpClient.Timeout = c.base.Timeout
	return c, nil
}

func (c *Client) Name() string { return providerName }

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type vertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type annotateResponse struct {
	Responses []struct {
		LocalizedObjectAnnotations []struct {
			Name         string  `json:"name"`
			Score        float64 `json:"score"`
			BoundingPoly struct {
				NormalizedVertices []vertex `json:"normalizedVertices"`
			} `json:"boundingPoly"`
		} `json:"localizedObjectAnnotations"`
		TextAnnotations []struct {
			Description  string `json:"description"`
			BoundingPoly struct {
				Vertices []vertex `json:"vertices"`
			} `json:"boundingPoly"`
		} `json:"textAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
}

func (c *Client) annotate(ctx context.Context, img vision.Image, features ...feature) (*annotateResponse, error) {
	body, err := json.Marshal(map[string]any{
		"requests": []any{map[string]any{
			"image":    map[string]string{"content": base64.StdEncoding.EncodeToString(img.Data)},
			"features": features,
		}},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp annotateResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Responses) == 0 {
		return nil, errors.New("no response from vision api")
	}
	if e := resp.Responses[0].Error; e != nil {
		return nil, fmt.Errorf("vision api error %d: %s", e.Code, e.Message)
	}
	return &resp, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Classify(ctx context.Context, img vision.Image) (*discern.ClassificationBranch, error) {
	start := c.now()
	resp, err := c.annotate(ctx, img,
		feature{Type: "OBJECT_LOCALIZATION", MaxResults: 10},
		feature{Type: "LABEL_DETECTION", MaxResults: 10},
	)
	if err != nil {
		return nil, fmt.Errorf("gcp classification: %w", err)
	}

	width, height := float64(img.Width), float64(img.Height)
	if width <= 0 || height <= 0 {
		width, height = fallbackWidth, fallbackHeight
	}

	objects := resp.Responses[0].LocalizedObjectAnnotations
	branch := &discern.ClassificationBranch{
		ImageKey:         img.Key,
		Classifications:  make([]discern.Classification, 0, len(objects)),
		DetectedObjects:  make([]discern.DetectedObject, 0, len(objects)),
		ConfidenceScores: make(map[string]float64, len(objects)),
	}
	for _, obj := range objects {
		box := boundsOf(obj.BoundingPoly.NormalizedVertices, width, height)
		name := strings.ToLower(obj.Name)
		branch.Classifications = append(branch.Classifications, discern.Classification{
			Category:    vision.CategorizeObject(obj.Name),
			Subcategory: name,
			Confidence:  obj.Score,
			BoundingBox: box,
		})
		branch.DetectedObjects = append(branch.DetectedObjects, discern.DetectedObject{
			Name:        obj.Name,
			Confidence:  obj.Score,
			BoundingBox: box,
		})
		branch.ConfidenceScores[name] = obj.Score
	}
	branch.ProcessingMetadata = discern.ProcessingMetadata{
		APIProvider:      providerName,
		ModelVersion:     "latest",
		ProcessingTimeMs: c.now().Sub(start).Milliseconds(),
	}
	return branch, nil
}

func (c *Client) ExtractText(ctx context.Context, img vision.Image) (*discern.TextBranch, error) {
	start := c.now()
	resp, err := c.annotate(ctx, img, feature{Type: "TEXT_DETECTION", MaxResults: 50})
	if err != nil {
		return nil, fmt.Errorf("gcp text extraction: %w", err)
	}

	annotations := resp.Responses[0].TextAnnotations
	branch := &discern.TextBranch{
		ImageKey:   img.Key,
		TextBlocks: make([]discern.TextBlock, 0, len(annotations)),
	}
	// The first annotation carries the full text, the rest are fragments.
	for i, a := range annotations {
		if i == 0 {
			branch.ExtractedText = a.Description
			continue
		}
		branch.TextBlocks = append(branch.TextBlocks, discern.TextBlock{
			Text:        a.Description,
			Confidence:  textBlockConfidence,
			BoundingBox: boundsOf(a.BoundingPoly.Vertices, 1, 1),
		})
	}

	var textConfidence float64
	if len(branch.TextBlocks) > 0 {
		textConfidence = textBlockConfidence
	}
	branch.StructuredIdentifiers = fusion.ExtractIdentifiers(branch.ExtractedText)
	branch.ProcessingMetadata = discern.ProcessingMetadata{
		APIProvider:      providerName,
		TextConfidence:   textConfidence,
		ProcessingTimeMs: c.now().Sub(start).Milliseconds(),
	}
	return branch, nil
}

// boundsOf returns the axis-aligned box around vertices scaled by sx, sy.
func boundsOf(vertices []vertex, sx, sy float64) discern.BoundingBox {
	if len(vertices) == 0 {
		return discern.BoundingBox{}
	}
	minX, minY := vertices[0].X*sx, vertices[0].Y*sy
	maxX, maxY := minX, minY
	for _, v := range vertices[1:] {
		x, y := v.X*sx, v.Y*sy
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	return discern.BoundingBox{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}
