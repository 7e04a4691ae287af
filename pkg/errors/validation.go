package errors

import (
	"fmt"
	"reflect"
	"strings"

	"invitely/pkg/models"
	"invitely/pkg/utils"
)

// Upload limits enforced before any network call
const (
	MaxUploadBytes = 10 << 20
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ValidationResult holds validation results
type ValidationResult struct {
	IsValid bool
	Errors  []*AppError
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(err *AppError) {
	vr.IsValid = false
	vr.Errors = append(vr.Errors, err)
}

// GetFirstError returns the first error or nil
func (vr *ValidationResult) GetFirstError() *AppError {
	if len(vr.Errors) > 0 {
		return vr.Errors[0]
	}
	return nil
}

// Validator provides validation utilities
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePartial checks the shape of a partial update before it is merged:
// activeIndex must be numeric and slides must be a sequence.
func (v *Validator) ValidatePartial(partial map[string]interface{}) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	if partial == nil {
		result.AddError(ErrValidation.WithContext("reason", "partial is not an object"))
		return result
	}

	if idx, ok := partial["activeIndex"]; ok && !isNumber(idx) {
		result.AddError(ErrValidation.WithContext("field", "activeIndex").
			WithContext("reason", "not a number"))
	}

	if slides, ok := partial["slides"]; ok && !isSequence(slides) {
		result.AddError(ErrValidation.WithContext("field", "slides").
			WithContext("reason", "not a sequence"))
	}

	return result
}

// ValidateProject checks the invariants of a complete project value
func (v *Validator) ValidateProject(p *models.Project) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	if len(p.Slides) == 0 {
		result.AddError(ErrValidation.WithContext("reason", "project has no slides"))
		return result
	}

	if p.ActiveIndex < 0 || p.ActiveIndex >= len(p.Slides) {
		result.AddError(ErrValidation.WithContext("field", "activeIndex").
			WithContext("value", p.ActiveIndex))
	}

	if !p.RSVP.Valid() {
		result.AddError(ErrValidation.WithContext("field", "rsvp").
			WithContext("value", string(p.RSVP)))
	}

	for i, s := range p.Slides {
		if s.DurationMs <= 0 {
			result.AddError(ErrValidation.WithContext("field", fmt.Sprintf("slides.%d.durationMs", i)))
		}
		if s.Image != nil {
			img := s.Image
			if !utils.IsFinite(img.CX) || !utils.IsFinite(img.CY) || !utils.IsFinite(img.Angle) {
				result.AddError(ErrValidation.WithContext("field", fmt.Sprintf("slides.%d.image", i)).
					WithContext("reason", "non-finite transform"))
			}
			if !utils.IsFinite(img.Scale) || img.Scale <= 0 {
				result.AddError(ErrValidation.WithContext("field", fmt.Sprintf("slides.%d.image.scale", i)))
			}
			if img.FadeInMs < 0 || img.FadeOutMs < 0 || img.ZoomInMs < 0 || img.ZoomOutMs < 0 {
				result.AddError(ErrValidation.WithContext("field", fmt.Sprintf("slides.%d.image", i)).
					WithContext("reason", "negative animation duration"))
			}
		}
		for j, l := range s.Layers {
			field := fmt.Sprintf("slides.%d.layers.%d", i, j)
			if !utils.IsFinite(l.Left) || !utils.IsFinite(l.Top) {
				result.AddError(ErrValidation.WithContext("field", field).
					WithContext("reason", "non-finite position"))
			}
			if l.Width != nil && !utils.IsFinite(*l.Width) {
				result.AddError(ErrValidation.WithContext("field", field+".width"))
			}
			if !utils.IsFinite(l.FontSize) || l.FontSize <= 0 {
				result.AddError(ErrValidation.WithContext("field", field+".fontSize"))
			}
		}
	}

	return result
}

// ValidateImageUpload validates an image before it is sent anywhere
func (v *Validator) ValidateImageUpload(contentType string, size int64) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !allowedImageTypes[ct] {
		result.AddError(ErrUnsupportedFileType.WithContext("contentType", contentType))
	}

	if size > MaxUploadBytes {
		result.AddError(ErrFileTooLarge.WithContext("size", size).
			WithContext("limit", MaxUploadBytes))
	}

	return result
}

func isNumber(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func isSequence(v interface{}) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}
