package random

import (
	"errors"
	"testing"
)

func TestNumericCodeShape(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := NumericCode(6)
		if err != nil {
			t.Fatalf("NumericCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in %q", code)
			}
		}
	}
}

func TestAccountNumberNeverLeadsWithZero(t *testing.T) {
	for i := 0; i < 500; i++ {
		id, err := AccountNumber(10)
		if err != nil {
			t.Fatalf("AccountNumber: %v", err)
		}
		if len(id) != 10 || id[0] == '0' {
			t.Fatalf("bad account number %q", id)
		}
	}
}

func TestLengthBounds(t *testing.T) {
	if _, err := NumericCode(3); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
	if _, err := AccountNumber(20); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
	if _, err := Digits(0); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}
