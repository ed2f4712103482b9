package tools

import (
	"errors"
	"fmt"
	"testing"
)

func TestUnavailableError(t *testing.T) {
	for _, tt := range []struct {
		err  *UnavailableError
		want string
	}{
		{&UnavailableError{Tool: "sentiment"}, "sentiment unavailable"},
		{&UnavailableError{Tool: "web_search", Reason: "set TAVILY_API_KEY"}, "web_search unavailable: set TAVILY_API_KEY"},
	} {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}

	wrapped := fmt.Errorf("dispatch: %w", &UnavailableError{Tool: "retrieve_docs"})
	if !errors.Is(wrapped, ErrUnavailable) {
		t.Error("wrapped error does not match ErrUnavailable")
	}
	var ue *UnavailableError
	if !errors.As(wrapped, &ue) || ue.Tool != "retrieve_docs" {
		t.Errorf("errors.As = %v", ue)
	}
	if errors.Is(errors.New("boom"), ErrUnavailable) {
		t.Error("unrelated error matched ErrUnavailable")
	}
}
