package httpx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// HandleAPIGateway serves an API Gateway proxy request with the same routing and envelopes as
// the HTTP router.
func (h *ItemHandler) HandleAPIGateway(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	id, byID := req.PathParameters["id"]
	if !byID {
		id, byID = itemIDFromPath(req.Path)
	}

	var resp Response
	if byID {
		resp = h.Get(ctx, req.HTTPMethod, id)
	} else {
		body := []byte(req.Body)
		if req.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(req.Body)
			if err != nil {
				return events.APIGatewayProxyResponse{}, fmt.Errorf("decode request body: %w", err)
			}
			body = decoded
		}
		resp = h.Collection(ctx, req.HTTPMethod, body)
	}

	payload, err := json.Marshal(resp.Body)
	if err != nil {
		return events.APIGatewayProxyResponse{}, fmt.Errorf("encode response: %w", err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers: map[string]string{
			"Content-Type":   "application/json",
			corsOriginHeader: "*",
		},
		Body: string(payload),
	}, nil
}

func itemIDFromPath(path string) (string, bool) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "items" || trimmed == "" {
		return "", false
	}
	id, ok := strings.CutPrefix(trimmed, "items/")
	if !ok {
		return "", false
	}
	return id, true
}

