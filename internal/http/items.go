package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/semaphore"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/service/items"
)

// throttleErrorType is reported when the List endpoint is out of reserved concurrency.
const throttleErrorType = "TooManyRequestsException"

// Response is a transport neutral item endpoint result.
type Response struct {
	StatusCode int
	Body       any
}

// ErrorBody is the failure envelope shared by every item endpoint.
type ErrorBody struct {
	Message    string `json:"message"`
	ErrorType  string `json:"errorType"`
	StackTrace string `json:"stackTrace"`
}

// ItemHandler maps requests onto the item service. It is shared by the HTTP router and the
// Lambda entrypoint so both produce identical envelopes.
type ItemHandler struct {
	svc    *items.Service
	logger *slog.Logger
	list   *semaphore.Weighted
}

// NewItemHandler builds the handler. When the service policy simulates throttling, List admits
// at most reservedConcurrency concurrent executions.
func NewItemHandler(svc *items.Service, reservedConcurrency int, logger *slog.Logger) *ItemHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &ItemHandler{svc: svc, logger: logger.With("component", "item_handler")}
	if svc.Policy().SimulateThrottling() && reservedConcurrency > 0 {
		h.list = semaphore.NewWeighted(int64(reservedConcurrency))
		h.logger.Info("list concurrency reserved", "limit", reservedConcurrency)
	}
	return h
}

// Collection routes a request on the item collection: POST stores an item, anything else is
// handled by List.
func (h *ItemHandler) Collection(ctx context.Context, method string, body []byte) Response {
	if method == http.MethodPost {
		return h.Put(ctx, method, body)
	}
	return h.List(ctx, method)
}

// List serves GET /items.
func (h *ItemHandler) List(ctx context.Context, method string) Response {
	if method != http.MethodGet {
		return h.reject(domain.EndpointList, methodError(domain.EndpointList, http.MethodGet, method))
	}
	if h.list != nil {
		if !h.list.TryAcquire(1) {
			h.logger.Warn("list concurrency exhausted")
			failure := h.svc.Reject(domain.EndpointList, &items.Error{
				Kind:    items.KindCapacityExceeded,
				Code:    throttleErrorType,
				Message: "Rate Exceeded.",
			})
			return failureResponse(http.StatusTooManyRequests, failure)
		}
		defer h.list.Release(1)
	}
	result, err := h.svc.List(ctx)
	if err != nil {
		return failureResponse(http.StatusInternalServerError, items.Classify(err))
	}
	return Response{StatusCode: http.StatusOK, Body: result}
}

// Get serves GET /items/{id}.
func (h *ItemHandler) Get(ctx context.Context, method, id string) Response {
	if method != http.MethodGet {
		return h.reject(domain.EndpointGetByID, methodError(domain.EndpointGetByID, http.MethodGet, method))
	}
	if id == "" {
		return h.reject(domain.EndpointGetByID, items.ClientInput("item id is required", nil))
	}
	result, err := h.svc.GetByID(ctx, id)
	if err != nil {
		return failureResponse(http.StatusInternalServerError, items.Classify(err))
	}
	return Response{StatusCode: http.StatusOK, Body: result}
}

// Put serves POST /items.
func (h *ItemHandler) Put(ctx context.Context, method string, body []byte) Response {
	if method != http.MethodPost {
		return h.reject(domain.EndpointPut, methodError(domain.EndpointPut, http.MethodPost, method))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return h.reject(domain.EndpointPut, items.ClientInput("request body is required", nil))
	}
	var input items.PutInput
	if err := json.Unmarshal(body, &input); err != nil {
		return h.reject(domain.EndpointPut, items.ClientInput("invalid JSON body", err))
	}
	result, err := h.svc.Put(ctx, input)
	if err != nil {
		return failureResponse(http.StatusInternalServerError, items.Classify(err))
	}
	return Response{StatusCode: http.StatusOK, Body: result}
}

func (h *ItemHandler) reject(endpoint domain.Endpoint, err error) Response {
	failure := h.svc.Reject(endpoint, err)
	h.logger.Warn("request rejected", "endpoint", endpoint, "error", failure)
	// Client errors stay 500s to match the fault demo's visible failures.
	return failureResponse(http.StatusInternalServerError, failure)
}

// unreadableBody rejects a collection request whose body could not be read, attributing it
// the same way Collection routes it.
func (h *ItemHandler) unreadableBody(method string, err error) Response {
	endpoint := domain.EndpointList
	if method == http.MethodPost {
		endpoint = domain.EndpointPut
	}
	return h.reject(endpoint, items.ClientInput("request body could not be read", err))
}

func methodError(endpoint domain.Endpoint, want, got string) error {
	return items.ClientInput(fmt.Sprintf("%s only accepts %s method, you tried: %s", endpoint, want, got), nil)
}

func failureResponse(status int, failure *items.Error) Response {
	return Response{
		StatusCode: status,
		Body: ErrorBody{
			Message:    failure.Message,
			ErrorType:  failure.ErrorType(),
			StackTrace: failure.Trace(),
		},
	}
}
