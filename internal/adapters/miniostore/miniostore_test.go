package miniostore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_OptionValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing endpoint", Options{AccessKey: "a", SecretKey: "s", Bucket: "b"}},
		{"missing access key", Options{Endpoint: "localhost:9000", SecretKey: "s", Bucket: "b"}},
		{"missing secret key", Options{Endpoint: "localhost:9000", AccessKey: "a", Bucket: "b"}},
		{"missing bucket", Options{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			assert.Error(t, err)
		})
	}
}
