package errors

import (
	stderrors "errors"
	"fmt"
	"math"
	"testing"
	"time"

	"invitely/pkg/models"
)

func TestWithHelpersDoNotMutateSentinels(t *testing.T) {
	e := ErrNetwork.WithContext("url", "http://x").WithUserMessage("custom")

	if ErrNetwork.Context != nil {
		t.Errorf("sentinel context mutated: %v", ErrNetwork.Context)
	}
	if ErrNetwork.UserMessage == "custom" {
		t.Error("sentinel user message mutated")
	}
	if !stderrors.Is(e, ErrNetwork) {
		t.Error("copy should still match the sentinel")
	}
	if stderrors.Is(e, ErrServer) {
		t.Error("copy should not match a different code")
	}
}

func TestIsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", ErrInvalidShareLink.WithCause(fmt.Errorf("bad base64")))
	if !stderrors.Is(err, ErrInvalidShareLink) {
		t.Error("expected wrapped error to match ErrInvalidShareLink")
	}
}

func TestRetryHandlerRetriesOnlyRetryable(t *testing.T) {
	r := NewRetryHandler(3)
	r.OnRetry = nil

	calls := 0
	err := r.Execute(func() error {
		calls++
		return ErrNetwork
	})
	if calls != 3 || !stderrors.Is(err, ErrNetwork) {
		t.Errorf("retryable: calls=%d err=%v", calls, err)
	}

	calls = 0
	err = r.Execute(func() error {
		calls++
		return ErrAuthRequired
	})
	if calls != 1 || !stderrors.Is(err, ErrAuthRequired) {
		t.Errorf("non-retryable: calls=%d err=%v", calls, err)
	}

	calls = 0
	err = r.Execute(func() error {
		calls++
		if calls < 2 {
			return ErrServer
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("recovering: calls=%d err=%v", calls, err)
	}
}

func TestRetryHandlerPredicateAndBackoff(t *testing.T) {
	r := NewRetryHandler(3)
	r.OnRetry = nil
	r.ShouldRetry = func(err error) bool { return !stderrors.Is(err, ErrRateLimited) }

	calls := 0
	err := r.Execute(func() error {
		calls++
		return ErrRateLimited
	})
	if calls != 1 || !stderrors.Is(err, ErrRateLimited) {
		t.Errorf("rate limited: calls=%d err=%v", calls, err)
	}

	r.ShouldRetry = nil
	r.Backoff = 5 * time.Millisecond
	calls = 0
	start := time.Now()
	r.Execute(func() error {
		calls++
		return ErrNetwork
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Errorf("waited %v, want at least 5ms+10ms", elapsed)
	}
}

func TestValidatePartial(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		partial map[string]interface{}
		valid   bool
	}{
		{"nil", nil, false},
		{"empty", map[string]interface{}{}, true},
		{"numeric index", map[string]interface{}{"activeIndex": float64(1)}, true},
		{"string index", map[string]interface{}{"activeIndex": "1"}, false},
		{"slides sequence", map[string]interface{}{"slides": []interface{}{}}, true},
		{"slides object", map[string]interface{}{"slides": map[string]interface{}{}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := v.ValidatePartial(tt.partial).IsValid; got != tt.valid {
				t.Errorf("IsValid = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestValidateProject(t *testing.T) {
	v := NewValidator()

	p := models.NewProject()
	if r := v.ValidateProject(&p); !r.IsValid {
		t.Fatalf("fresh project invalid: %v", r.GetFirstError())
	}

	bad := p.Clone()
	bad.ActiveIndex = 3
	if v.ValidateProject(&bad).IsValid {
		t.Error("out of range activeIndex accepted")
	}

	bad = p.Clone()
	bad.Slides[0].Image = &models.Image{Scale: 1, CX: math.NaN()}
	if v.ValidateProject(&bad).IsValid {
		t.Error("NaN image center accepted")
	}

	bad = p.Clone()
	bad.Slides = nil
	if v.ValidateProject(&bad).IsValid {
		t.Error("project without slides accepted")
	}
}

func TestValidateImageUpload(t *testing.T) {
	v := NewValidator()

	if r := v.ValidateImageUpload("image/png; charset=binary", 100); !r.IsValid {
		t.Errorf("png rejected: %v", r.GetFirstError())
	}
	r := v.ValidateImageUpload("application/pdf", 100)
	if r.IsValid || !stderrors.Is(r.GetFirstError(), ErrUnsupportedFileType) {
		t.Errorf("pdf: %+v", r.Errors)
	}
	r = v.ValidateImageUpload("image/jpeg", MaxUploadBytes+1)
	if r.IsValid || !stderrors.Is(r.GetFirstError(), ErrFileTooLarge) {
		t.Errorf("oversize: %+v", r.Errors)
	}
}

func TestToFrontendError(t *testing.T) {
	fe := ToFrontendError(ErrRateLimited.WithContext("retryAfter", "30"))
	if fe.Code != "RATE_LIMITED" || !fe.Retryable || fe.Context["retryAfter"] != "30" {
		t.Errorf("unexpected frontend error: %+v", fe)
	}
	if StatusLine(nil) != "" {
		t.Error("nil error should give an empty status line")
	}
	if got := ToFrontendError(fmt.Errorf("boom")); got.Code != "GENERIC_ERROR" {
		t.Errorf("generic code = %q", got.Code)
	}
}
