package db

import (
	"errors"
	"testing"
)

func TestNewUnknownType(t *testing.T) {
	s, err := New("oracle", "")
	if !errors.Is(err, ErrUnknownDBType) {
		t.Errorf("expected ErrUnknownDBType, got:%v", err)
	}
	if s != nil {
		t.Errorf("expected no store for unknown dbtype, got:%T", s)
	}
}

func TestNewMemory(t *testing.T) {
	s, err := New(MEMORY, "")
	if err != nil {
		t.Fatalf("Error creating mem store:%e", err)
	}
	if s == nil {
		t.Fatalf("no store returned")
	}
	if err = Close(MEMORY, s); err != nil {
		t.Errorf("Error closing mem store:%e", err)
	}
}
