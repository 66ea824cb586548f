// Package upload validates user-supplied image files before any network
// call is made.
package upload

import (
	"fmt"
	"net/http"
)

// Limits for a single batch of uploads.
const (
	// MaxFiles caps how many images one batch may carry.
	MaxFiles = 10
	// MaxFileSize caps a single file at 10MB.
	MaxFileSize = 10 * 1024 * 1024
)

// allowedTypes is the MIME whitelist the backend model accepts.
var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/bmp":  true,
	// DetectContentType reports BMP as x-ms-bmp on some inputs.
	"image/x-ms-bmp": true,
}

// File is one uploaded image, already read into memory.
type File struct {
	Name string
	Data []byte
}

// ValidationError reports a client-side rejection for one file (or for the
// batch as a whole, in which case Name is empty).
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Name, e.Reason)
}

// Validator checks files against the configured limits.
type Validator struct {
	maxFiles    int
	maxFileSize int64
}

// NewValidator creates a Validator with the given limits; non-positive
// values fall back to the defaults.
func NewValidator(maxFiles int, maxFileSize int64) *Validator {
	if maxFiles <= 0 {
		maxFiles = MaxFiles
	}
	if maxFileSize <= 0 {
		maxFileSize = MaxFileSize
	}
	return &Validator{maxFiles: maxFiles, maxFileSize: maxFileSize}
}

// ValidateBatch checks the batch size and every file, returning one error
// per offending file. An empty slice means the batch is acceptable.
func (v *Validator) ValidateBatch(files []File) []*ValidationError {
	var errs []*ValidationError

	if len(files) == 0 {
		return append(errs, &ValidationError{Reason: "no image files provided"})
	}
	if len(files) > v.maxFiles {
		errs = append(errs, &ValidationError{
			Reason: fmt.Sprintf("too many files: %d (maximum %d)", len(files), v.maxFiles),
		})
	}
	for _, f := range files {
		if err := v.ValidateFile(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ValidateFile checks one file's size and sniffed content type.
func (v *Validator) ValidateFile(f File) *ValidationError {
	if len(f.Data) == 0 {
		return &ValidationError{Name: f.Name, Reason: "empty file"}
	}
	if int64(len(f.Data)) > v.maxFileSize {
		return &ValidationError{
			Name:   f.Name,
			Reason: fmt.Sprintf("file too large: %d bytes (maximum %d)", len(f.Data), v.maxFileSize),
		}
	}
	// Sniff the actual content rather than trusting the declared MIME type.
	kind := http.DetectContentType(f.Data)
	if !allowedTypes[kind] {
		return &ValidationError{
			Name:   f.Name,
			Reason: fmt.Sprintf("unsupported type %s (use JPEG, PNG, or BMP)", kind),
		}
	}
	return nil
}
