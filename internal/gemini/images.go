package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"ykj/studio/internal/gateway"
	"ykj/studio/internal/model"

	"github.com/sashabaranov/go-openai"
)

func imageSize(ratio model.AspectRatio) string {
	switch ratio {
	case model.AspectLandscape:
		return openai.CreateImageSize1792x1024
	case model.AspectPortrait:
		return openai.CreateImageSize1024x1792
	default:
		return openai.CreateImageSize1024x1024
	}
}

func (c *Client) GenerateImages(ctx context.Context, spec gateway.ImageSpec) ([]gateway.InlineImage, error) {
	n := spec.NumberOfImages
	if n < 1 {
		n = 1
	}
	req := openai.ImageRequest{
		Prompt:         spec.Prompt,
		Model:          spec.Model,
		N:              n,
		Size:           imageSize(spec.AspectRatio),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}
	if spec.HD {
		req.Quality = openai.CreateImageQualityHD
	}
	resp, err := c.api.CreateImage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("creating image: %w", err)
	}
	images := make([]gateway.InlineImage, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.B64JSON == "" {
			continue
		}
		images = append(images, gateway.InlineImage{MimeType: spec.OutputMimeType, Base64: d.B64JSON})
	}
	return images, nil
}

type contentPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []contentPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// EditImage sends the image first and the instruction second, asking for
// both image and text modalities back.
func (c *Client) EditImage(ctx context.Context, spec gateway.EditSpec) (gateway.EditReply, error) {
	body := map[string]any{
		"contents": []map[string]any{{
			"parts": []contentPart{
				{InlineData: &inlineData{MimeType: spec.Image.MimeType, Data: spec.Image.Base64}},
				{Text: spec.Prompt},
			},
		}},
		"generationConfig": map[string]any{
			"responseModalities": []string{"IMAGE", "TEXT"},
		},
	}
	var resp generateContentResponse
	if err := c.do(ctx, http.MethodPost, "/v1beta/models/"+spec.Model+":generateContent", body, &resp); err != nil {
		return gateway.EditReply{}, err
	}

	var reply gateway.EditReply
	var text strings.Builder
	if len(resp.Candidates) > 0 {
		for _, p := range resp.Candidates[0].Content.Parts {
			switch {
			case p.InlineData != nil:
				reply.Images = append(reply.Images, gateway.InlineImage{MimeType: p.InlineData.MimeType, Base64: p.InlineData.Data})
			case p.Text != "":
				text.WriteString(p.Text)
			}
		}
	}
	reply.Text = text.String()
	return reply, nil
}
