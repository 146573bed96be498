package store

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/smithy-go/middleware"
)

// dynamoEndpoint answers every DynamoDB JSON request with a fixed status and
// body, recording the X-Amz-Target of each call.
type dynamoEndpoint struct {
	mu      sync.Mutex
	status  int
	body    string
	targets []string
}

func (e *dynamoEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)

	e.mu.Lock()
	e.targets = append(e.targets, r.Header.Get("X-Amz-Target"))
	status, body := e.status, e.body
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-amz-json-1.0")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (e *dynamoEndpoint) calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.targets...)
}

func newHTTPDynamoStore(t *testing.T, endpoint *dynamoEndpoint) *DynamoStore {
	t.Helper()
	srv := httptest.NewServer(endpoint)
	t.Cleanup(srv.Close)

	client := dynamodb.New(dynamodb.Options{
		Region:           "us-west-2",
		BaseEndpoint:     aws.String(srv.URL),
		Credentials:      credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		RetryMaxAttempts: 1,
	})
	return NewDynamoStoreFromClient(client, "services_configs", testLogger())
}

func TestDynamoStore_AddConfigOverHTTP_Success(t *testing.T) {
	endpoint := &dynamoEndpoint{status: http.StatusOK, body: "{}"}
	s := newHTTPDynamoStore(t, endpoint)

	ok, err := s.AddConfig(context.Background(), "svcA", "emails", map[string]any{"enabled": true})
	if err != nil {
		t.Fatalf("AddConfig() error: %v", err)
	}
	if !ok {
		t.Fatal("expected AddConfig to report success on a 200 response")
	}

	if calls := endpoint.calls(); len(calls) != 1 || calls[0] != "DynamoDB_20120810.PutItem" {
		t.Errorf("expected a single PutItem call, got %v", calls)
	}
}

// A non-2xx response never yields a PutItem output: the SDK turns it into
// an error, which the store classifies.
func TestDynamoStore_AddConfigOverHTTP_Non2xx(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
	}{
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `{"__type":"com.amazonaws.dynamodb.v20120810#InternalServerError","message":"table on fire"}`,
			wantKind: KindBackend,
		},
		{
			name:     "throttled",
			status:   http.StatusBadRequest,
			body:     `{"__type":"com.amazonaws.dynamodb.v20120810#ProvisionedThroughputExceededException","message":"slow down"}`,
			wantKind: KindBackend,
		},
		{
			name:     "bad credentials",
			status:   http.StatusBadRequest,
			body:     `{"__type":"com.amazon.coral.service#UnrecognizedClientException","message":"The security token included in the request is invalid."}`,
			wantKind: KindConnectivity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newHTTPDynamoStore(t, &dynamoEndpoint{status: tt.status, body: tt.body})

			ok, err := s.AddConfig(context.Background(), "svcA", "emails", map[string]any{})
			if ok {
				t.Fatal("expected AddConfig to report failure")
			}
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := KindOf(err); got != tt.wantKind {
				t.Errorf("kind = %v, want %v (err: %v)", got, tt.wantKind, errors.Unwrap(err))
			}
			if err.Error() != InternalErrorMessage {
				t.Errorf("expected generic message, got %q", err.Error())
			}
			if strings.Contains(err.Error(), "fire") {
				t.Errorf("error leaked the backend cause: %q", err.Error())
			}
		})
	}
}

func TestResponseStatus_NoRawResponse(t *testing.T) {
	if got := responseStatus(middleware.Metadata{}); got != http.StatusOK {
		t.Errorf("responseStatus() = %d, want 200", got)
	}
}
