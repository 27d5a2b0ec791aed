package storage

import (
	"fmt"
	"strings"
)

// AllowedContentTypes lists the MIME types accepted for archived payloads.
var AllowedContentTypes = map[string]bool{
	"application/json": true,
	"text/plain":       true,
}

// ValidateContentType checks if the content type is allowed.
func (s *MinIOService) ValidateContentType(contentType string) error {
	return validateContentType(contentType)
}

// ValidateFileSize checks if the object size is within limits.
func (s *MinIOService) ValidateFileSize(sizeBytes int64) error {
	return validateSize(sizeBytes, s.maxFileSize)
}

func validateContentType(contentType string) error {
	// Normalize content type (remove parameters like charset)
	normalized := strings.Split(contentType, ";")[0]
	normalized = strings.TrimSpace(strings.ToLower(normalized))

	if !AllowedContentTypes[normalized] {
		return fmt.Errorf("content type %q is not allowed", contentType)
	}
	return nil
}

func validateSize(sizeBytes, maxSize int64) error {
	if sizeBytes <= 0 {
		return fmt.Errorf("file size must be greater than 0")
	}
	if maxSize > 0 && sizeBytes > maxSize {
		return fmt.Errorf("file size %d bytes exceeds maximum allowed size of %d bytes", sizeBytes, maxSize)
	}
	return nil
}
