package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/cutroom-studio/cutroom-engine/pkg/models"
)

func TestRequireCaller(t *testing.T) {
	if _, err := RequireCaller(context.Background()); !errors.Is(err, ErrNoCaller) {
		t.Errorf("expected ErrNoCaller, got %v", err)
	}

	want := Caller{ID: uuid.New(), Role: models.RoleClient}
	got, err := RequireCaller(WithCaller(context.Background(), want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
