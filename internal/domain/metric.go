package domain

import "time"

// Endpoint names one of the three logical item operations.
type Endpoint string

const (
	EndpointList    Endpoint = "List"
	EndpointGetByID Endpoint = "GetById"
	EndpointPut     Endpoint = "Put"
)

// Endpoints lists every monitored endpoint in a stable order.
var Endpoints = []Endpoint{EndpointList, EndpointGetByID, EndpointPut}

// Route returns the HTTP method and resource served by the endpoint.
func (e Endpoint) Route() string {
	switch e {
	case EndpointList:
		return "GET /items"
	case EndpointGetByID:
		return "GET /items/{id}"
	case EndpointPut:
		return "POST /items"
	default:
		return string(e)
	}
}

// Valid reports whether e is a known endpoint.
func (e Endpoint) Valid() bool {
	switch e {
	case EndpointList, EndpointGetByID, EndpointPut:
		return true
	}
	return false
}

// StatusClass buckets a request outcome.
type StatusClass string

const (
	StatusSuccess     StatusClass = "Success"
	StatusClientError StatusClass = "ClientError"
	StatusServerError StatusClass = "ServerError"
	StatusThrottled   StatusClass = "Throttled"
)

// Valid reports whether c is a known status class.
func (c StatusClass) Valid() bool {
	switch c {
	case StatusSuccess, StatusClientError, StatusServerError, StatusThrottled:
		return true
	}
	return false
}

// MetricSample is the outcome of a single request. Samples are produced once per request and
// never mutated.
type MetricSample struct {
	Endpoint    Endpoint    `json:"endpoint"`
	TimestampMS uint64      `json:"timestampMs"`
	StatusClass StatusClass `json:"statusClass"`
	LatencyMS   uint64      `json:"latencyMs"`
	ErrorKind   string      `json:"errorKind,omitempty"`
}

// Time converts the sample timestamp to a time.Time in UTC.
func (s MetricSample) Time() time.Time {
	return time.UnixMilli(int64(s.TimestampMS)).UTC()
}

// CountsAsError reports whether the sample counts toward the error rate.
func (s MetricSample) CountsAsError() bool {
	return s.StatusClass == StatusServerError || s.StatusClass == StatusThrottled
}
