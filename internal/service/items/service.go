// Package items serves the list, get-by-id and put operations with fault injection applied.
package items

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/service/fault"
)

const (
	blobContentType = "application/json"
	tracerName      = "github.com/ShannaChang/serverless-demo-for-aiops/internal/service/items"
)

// PlaceholderContent replaces blob content that could not be read.
var PlaceholderContent = json.RawMessage(`{"message":"Content not available"}`)

// Recorder receives one sample per request.
type Recorder interface {
	Record(sample domain.MetricSample)
}

// PutInput is the body accepted by Put.
type PutInput struct {
	ID      string `json:"id,omitempty" validate:"omitempty,max=256,excludesall=/"`
	Name    string `json:"name" validate:"required,max=1024"`
	Content string `json:"content,omitempty"`
}

// PutResult is returned after a successful Put.
type PutResult struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BlobKey string `json:"blobKey"`
	Success bool   `json:"success"`
}

// ListResult is the full scan of the item table.
type ListResult struct {
	Items []domain.Item `json:"items"`
	Count int           `json:"count"`
}

// ItemWithContent is an item merged with its blob content.
type ItemWithContent struct {
	domain.Item
	Content json.RawMessage `json:"content"`
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides identifier generation for items without an id.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithTracer overrides the tracer used for operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// Service implements the item operations.
type Service struct {
	items    repository.ItemRepository
	blobs    repository.BlobStore
	injector *fault.Injector
	recorder Recorder
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

// New wires the service. Stores that retry internally are rejected so throttling and access
// denials stay observable.
func New(items repository.ItemRepository, blobs repository.BlobStore, injector *fault.Injector, recorder Recorder, logger *slog.Logger, opts ...Option) (*Service, error) {
	if items == nil || blobs == nil {
		return nil, errors.New("item and blob stores are required")
	}
	if injector == nil {
		return nil, errors.New("fault injector is required")
	}
	if n := items.Retries(); n != 0 {
		return nil, fmt.Errorf("item store retries %d times, want 0", n)
	}
	if n := blobs.Retries(); n != 0 {
		return nil, fmt.Errorf("blob store retries %d times, want 0", n)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		items:    items,
		blobs:    blobs,
		injector: injector,
		recorder: recorder,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Policy exposes the fault policy in effect.
func (s *Service) Policy() fault.Policy { return s.injector.Policy() }

// List returns every item. Latency injection is the only fault applied.
func (s *Service) List(ctx context.Context) (result *ListResult, err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "items.List")
	defer func() { s.finish(span, domain.EndpointList, start, err) }()

	decision := s.injector.Decide(domain.EndpointList, "")
	s.annotate(span, decision)
	if err = s.injector.Wait(ctx, domain.EndpointList, decision); err != nil {
		return nil, Classify(err)
	}

	items, scanErr := s.scan(ctx)
	if scanErr != nil {
		err = Classify(scanErr)
		return nil, err
	}
	return &ListResult{Items: items, Count: len(items)}, nil
}

// GetByID looks up an item and attaches its blob content. The lookup id may be substituted
// by the injector, in which case the miss surfaces as NotFound.
func (s *Service) GetByID(ctx context.Context, id string) (result *ItemWithContent, err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "items.GetByID", trace.WithAttributes(attribute.String("item.id", id)))
	defer func() { s.finish(span, domain.EndpointGetByID, start, err) }()

	if strings.TrimSpace(id) == "" {
		err = ClientInput("item id is required", nil)
		return nil, err
	}

	decision := s.injector.Decide(domain.EndpointGetByID, id)
	s.annotate(span, decision)
	lookupID := id
	if decision.Substituted() {
		lookupID = decision.SubstituteID
	}
	if err = s.injector.Wait(ctx, domain.EndpointGetByID, decision); err != nil {
		return nil, Classify(err)
	}

	item, getErr := s.getItem(ctx, lookupID)
	if getErr != nil {
		if errors.Is(getErr, repository.ErrNotFound) {
			err = &Error{Kind: KindNotFound, Message: "item not found", Err: fmt.Errorf("item %s: %w", lookupID, getErr)}
			return nil, err
		}
		err = Classify(getErr)
		return nil, err
	}

	content := PlaceholderContent
	if item.BlobKey != "" {
		body, blobErr := s.getObject(ctx, item.BlobKey, decision.ForceDeny)
		switch {
		case blobErr == nil:
			if json.Valid(body) {
				content = json.RawMessage(body)
			} else {
				s.logger.Warn("blob content is not json, using placeholder", "item_id", item.ID, "blob_key", item.BlobKey)
			}
		case repository.IsAccessDenied(blobErr) && s.Policy().SimulateStoreAccessDenied():
			s.logger.Error("blob access denied", "item_id", item.ID, "blob_key", item.BlobKey, "error_type", repository.Code(blobErr), "error", blobErr)
			err = Classify(blobErr)
			return nil, err
		default:
			s.logger.Warn("blob read failed, continuing without content", "item_id", item.ID, "blob_key", item.BlobKey, "error", blobErr)
		}
	}
	return &ItemWithContent{Item: *item, Content: content}, nil
}

// Put writes the content blob and then the item record. An access denial on the blob write
// aborts the put only while access-denial simulation is active; any other blob failure is
// logged and the record is still written.
func (s *Service) Put(ctx context.Context, input PutInput) (result *PutResult, err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "items.Put")
	defer func() { s.finish(span, domain.EndpointPut, start, err) }()

	if verr := s.validate.Struct(input); verr != nil {
		err = ClientInput("invalid item", verr)
		return nil, err
	}

	decision := s.injector.Decide(domain.EndpointPut, input.ID)
	s.annotate(span, decision)
	if err = s.injector.Wait(ctx, domain.EndpointPut, decision); err != nil {
		return nil, Classify(err)
	}

	id := input.ID
	if id == "" {
		id = s.newID()
	}
	span.SetAttributes(attribute.String("item.id", id))
	content := input.Content
	if content == "" {
		content = "Default content for " + input.Name
	}
	now := s.now().UTC()
	blobKey := BlobKey(id)

	body, encErr := json.Marshal(domain.ItemContent{ID: id, Name: input.Name, Content: content, Timestamp: now})
	if encErr != nil {
		err = fmt.Errorf("encode content: %w", encErr)
		return nil, Classify(err)
	}
	if blobErr := s.putObject(ctx, blobKey, body, decision.ForceDeny); blobErr != nil {
		if repository.IsAccessDenied(blobErr) && s.Policy().SimulateStoreAccessDenied() {
			s.logger.Error("blob access denied", "item_id", id, "blob_key", blobKey, "error_type", repository.Code(blobErr), "error", blobErr)
			err = Classify(blobErr)
			return nil, err
		}
		s.logger.Warn("blob write failed, saving item record anyway", "item_id", id, "blob_key", blobKey, "error", blobErr)
	}

	item := &domain.Item{ID: id, Name: input.Name, BlobKey: blobKey, CreatedAt: now}
	if putErr := s.putItem(ctx, item); putErr != nil {
		err = Classify(putErr)
		return nil, err
	}
	s.logger.Info("item saved", "item_id", id, "blob_key", blobKey)
	return &PutResult{ID: id, Name: input.Name, BlobKey: blobKey, Success: true}, nil
}

// Reject records a request refused before it reached an operation, such as an unsupported
// method or an exhausted concurrency limit, and returns the classified failure.
func (s *Service) Reject(endpoint domain.Endpoint, err error) *Error {
	classified := Classify(err)
	s.observe(endpoint, s.now(), classified)
	return classified
}

// BlobKey returns the content key for an item id.
func BlobKey(id string) string {
	return "items/" + id + ".json"
}

func (s *Service) scan(ctx context.Context) ([]domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "kv.Scan")
	defer span.End()
	items, err := s.items.ScanItems(ctx)
	endSpan(span, err)
	return items, err
}

func (s *Service) getItem(ctx context.Context, id string) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "kv.Get", trace.WithAttributes(attribute.String("item.id", id)))
	defer span.End()
	item, err := s.items.GetItem(ctx, id)
	endSpan(span, err)
	return item, err
}

func (s *Service) putItem(ctx context.Context, item *domain.Item) error {
	ctx, span := s.tracer.Start(ctx, "kv.Put", trace.WithAttributes(attribute.String("item.id", item.ID)))
	defer span.End()
	err := s.items.PutItem(ctx, item)
	endSpan(span, err)
	return err
}

func (s *Service) getObject(ctx context.Context, key string, deny bool) ([]byte, error) {
	ctx, span := s.tracer.Start(ctx, "blob.Get", trace.WithAttributes(attribute.String("blob.key", key)))
	defer span.End()
	if deny {
		err := repository.NewStoreError("get object "+key, repository.CodeAccessDenied, repository.ErrAccessDenied)
		endSpan(span, err)
		return nil, err
	}
	body, err := s.blobs.GetObject(ctx, key)
	endSpan(span, err)
	return body, err
}

func (s *Service) putObject(ctx context.Context, key string, body []byte, deny bool) error {
	ctx, span := s.tracer.Start(ctx, "blob.Put", trace.WithAttributes(attribute.String("blob.key", key)))
	defer span.End()
	if deny {
		err := repository.NewStoreError("put object "+key, repository.CodeAccessDenied, repository.ErrAccessDenied)
		endSpan(span, err)
		return err
	}
	err := s.blobs.PutObject(ctx, key, body, blobContentType)
	endSpan(span, err)
	return err
}

func (s *Service) annotate(span trace.Span, d fault.Decision) {
	span.SetAttributes(
		attribute.Int64("fault.delay_ms", d.Delay.Milliseconds()),
		attribute.Bool("fault.wrong_id", d.Substituted()),
		attribute.Bool("fault.force_deny", d.ForceDeny),
	)
}

func (s *Service) finish(span trace.Span, endpoint domain.Endpoint, start time.Time, err error) {
	var classified *Error
	if err != nil {
		classified = Classify(err)
		span.SetAttributes(attribute.String("error.type", classified.ErrorType()))
	}
	endSpan(span, err)
	span.End()
	s.observe(endpoint, start, classified)
}

func (s *Service) observe(endpoint domain.Endpoint, start time.Time, failure *Error) {
	if s.recorder == nil {
		return
	}
	elapsed := s.now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	sample := domain.MetricSample{
		Endpoint:    endpoint,
		TimestampMS: uint64(start.UnixMilli()),
		StatusClass: domain.StatusSuccess,
		LatencyMS:   uint64(elapsed.Milliseconds()),
	}
	if failure != nil {
		sample.StatusClass = failure.StatusClass()
		sample.ErrorKind = string(failure.Kind)
	}
	s.recorder.Record(sample)
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
