package gemini

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"ykj/studio/internal/gateway"
)

type videoInstance struct {
	Prompt string     `json:"prompt"`
	Image  *blobImage `json:"image,omitempty"`
}

type blobImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type videoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	SampleCount int    `json:"sampleCount"`
	Quality     string `json:"quality,omitempty"`
}

type operationResponse struct {
	Name  string    `json:"name"`
	Done  bool      `json:"done"`
	Error *APIError `json:"error,omitempty"`
	Resp  *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

func (o operationResponse) toOperation() (gateway.Operation, error) {
	if o.Error != nil {
		return gateway.Operation{}, o.Error
	}
	op := gateway.Operation{Name: o.Name, Done: o.Done}
	if o.Resp != nil {
		if samples := o.Resp.GenerateVideoResponse.GeneratedSamples; len(samples) > 0 {
			op.VideoURI = samples[0].Video.URI
		}
	}
	return op, nil
}

func (c *Client) SubmitVideo(ctx context.Context, spec gateway.VideoSpec) (gateway.Operation, error) {
	instance := videoInstance{Prompt: spec.Prompt}
	if spec.Image != nil {
		instance.Image = &blobImage{BytesBase64Encoded: spec.Image.Base64, MimeType: spec.Image.MimeType}
	}
	params := videoParameters{
		AspectRatio: string(spec.AspectRatio),
		SampleCount: spec.NumberOfVideos,
	}
	if spec.HD {
		params.Quality = "hd"
	}
	body := map[string]any{
		"instances":  []videoInstance{instance},
		"parameters": params,
	}

	var resp operationResponse
	path := "/v1beta/models/" + spec.Model + ":predictLongRunning"
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return gateway.Operation{}, err
	}
	return resp.toOperation()
}

func (c *Client) PollVideo(ctx context.Context, op gateway.Operation) (gateway.Operation, error) {
	var resp operationResponse
	if err := c.do(ctx, http.MethodGet, "/v1beta/"+op.Name, nil, &resp); err != nil {
		return gateway.Operation{}, err
	}
	return resp.toOperation()
}

// Download fetches a generated video. The key travels as a query parameter
// because the locator points at a file endpoint outside the REST surface.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse video uri: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Failed to download video: %s", http.StatusText(resp.StatusCode))
	}
	return io.ReadAll(resp.Body)
}
