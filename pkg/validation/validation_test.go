package validation

import (
	"strings"
	"testing"
)

func TestValidateComputerName(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
		expected    string
	}{
		{
			name:     "Valid name",
			input:    "PC-01",
			expected: "PC-01",
		},
		{
			name:     "Name is trimmed",
			input:    "  Lab PC 2  ",
			expected: "Lab PC 2",
		},
		{
			name:        "Empty name",
			input:       "   ",
			expectError: true,
		},
		{
			name:        "Name too long",
			input:       strings.Repeat("a", MaxComputerNameLength+1),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateComputerName(tt.input)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error for input %q, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error for input %q: %v", tt.input, err)
			}
			if result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"a@b.io", "abebe.kebede@example.com"}
	invalid := []string{"", "not-an-email", "a@"}

	for _, email := range valid {
		if err := ValidateEmail(email); err != nil {
			t.Errorf("Expected %q to be valid, got %v", email, err)
		}
	}
	for _, email := range invalid {
		if err := ValidateEmail(email); err == nil {
			t.Errorf("Expected %q to be invalid", email)
		}
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	if got := NormalizeIdentifier("  DuP123 "); got != "dup123" {
		t.Errorf("Expected dup123, got %q", got)
	}
	if got := NormalizeIdentifier("X@Y.com"); got != "x@y.com" {
		t.Errorf("Expected x@y.com, got %q", got)
	}
}

type samplePayload struct {
	Name      string `json:"name" validate:"required,max=5"`
	Email     string `json:"email" validate:"required,email"`
	UsageDays *int   `json:"usage_days" validate:"omitempty,min=0"`
	Role      string `json:"role" validate:"omitempty,oneof=admin student"`
}

func TestStruct(t *testing.T) {
	negative := -1
	errs := Struct(samplePayload{Name: "toolongname", Email: "bad", UsageDays: &negative, Role: "root"})

	expected := map[string]string{
		"name":       "name cannot exceed 5 characters",
		"email":      "email must be a valid email address",
		"usage_days": "usage_days must be at least 0",
		"role":       "role must be one of [admin student]",
	}
	if len(errs) != len(expected) {
		t.Fatalf("Expected %d errors, got %v", len(expected), errs)
	}
	for field, msg := range expected {
		if errs[field] != msg {
			t.Errorf("Field %s: expected %q, got %q", field, msg, errs[field])
		}
	}

	if errs := Struct(samplePayload{Name: "abc", Email: "a@b.io"}); errs != nil {
		t.Errorf("Expected no errors, got %v", errs)
	}

	if errs := Struct(samplePayload{}); errs["name"] != "name is required" {
		t.Errorf("Expected required message, got %v", errs)
	}
}
