package linkedin

import (
	"fmt"
	"testing"
)

func TestIsReauthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil",
			err:  nil,
			want: false,
		},
		{
			name: "status 401",
			err:  fmt.Errorf("wrapped: %w", &APIError{StatusCode: 401, Message: "anything"}),
			want: true,
		},
		{
			name: "service error code",
			err:  &APIError{StatusCode: 403, ServiceErrorCode: 65601},
			want: true,
		},
		{
			name: "structured code",
			err:  &APIError{StatusCode: 400, Code: "expired_access_token"},
			want: true,
		},
		{
			name: "phrase in message",
			err:  &APIError{StatusCode: 400, Message: "The token used in the request has expired"},
			want: true,
		},
		{
			name: "phrase in raw body",
			err:  &APIError{StatusCode: 400, Body: `{"error":"Invalid access token"}`},
			want: true,
		},
		{
			name: "missing credentials",
			err:  fmt.Errorf("publish: %w", ErrMissingCredentials),
			want: true,
		},
		{
			name: "permission denied",
			err:  &APIError{StatusCode: 403, ServiceErrorCode: 100, Message: "Not enough permissions to access: ugcPosts"},
			want: false,
		},
		{
			name: "server error",
			err:  &APIError{StatusCode: 500, Message: "Internal Server Error"},
			want: false,
		},
		{
			name: "plain error with phrase",
			err:  fmt.Errorf("access token expired for member"),
			want: true,
		},
		{
			name: "plain network error",
			err:  fmt.Errorf("dial tcp: connection refused"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsReauthError(tt.err); got != tt.want {
				t.Fatalf("IsReauthError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIErrorMessageFallsBackToBody(t *testing.T) {
	err := &APIError{StatusCode: 502, Body: "bad gateway"}
	if got := err.Error(); got != "linkedin api error: status=502, message=bad gateway" {
		t.Fatalf("unexpected error string: %s", got)
	}
}
