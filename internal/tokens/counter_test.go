package tokens

import (
	"strings"
	"testing"

	"github.com/tjfontaine/canvass-pipeline/internal/core/domain"
)

func TestForModel(t *testing.T) {
	tests := []string{"gpt-4o-mini", "gpt-4", "gpt-3.5-turbo", "some-future-model"}

	for _, model := range tests {
		t.Run(model, func(t *testing.T) {
			c, err := ForModel(model)
			if err != nil {
				t.Fatalf("ForModel() error = %v", err)
			}
			n := c.CountText("Hello, how are you?")
			if n < 3 || n > 10 {
				t.Errorf("CountText() = %d, want between 3 and 10", n)
			}
		})
	}
}

func TestModelToEncoding(t *testing.T) {
	if got := modelToEncoding("GPT-4o-mini"); got != "o200k_base" {
		t.Errorf("modelToEncoding(gpt-4o-mini) = %v", got)
	}
	if got := modelToEncoding("gpt-4-turbo"); got != "cl100k_base" {
		t.Errorf("modelToEncoding(gpt-4-turbo) = %v", got)
	}
}

func TestEstimator_CountText(t *testing.T) {
	e := NewEstimator()
	if got := e.CountText(strings.Repeat("a", 40)); got != 10 {
		t.Errorf("CountText() = %d, want 10", got)
	}
}

func TestCountMessages(t *testing.T) {
	e := NewEstimator()
	msgs := []domain.Message{
		{Role: domain.RoleUser, Content: strings.Repeat("a", 8)},
		{Role: domain.RoleAssistant, Content: strings.Repeat("b", 8)},
	}
	// priming 3 + 2 * (4 overhead + 2 content)
	if got := CountMessages(e, "", msgs); got != 15 {
		t.Errorf("CountMessages() = %d, want 15", got)
	}
}

func TestFitTranscript(t *testing.T) {
	e := NewEstimator()
	var msgs []domain.Message
	for i := 0; i < 10; i++ {
		msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: strings.Repeat("x", 40)})
	}
	msgs[9].Content = "latest"

	t.Run("no budget keeps everything", func(t *testing.T) {
		if got := FitTranscript(e, "sys", "", msgs, 0); len(got) != 10 {
			t.Errorf("len = %d, want 10", len(got))
		}
	})

	t.Run("trims oldest first", func(t *testing.T) {
		got := FitTranscript(e, "", "", msgs, 40)
		if len(got) == 0 || len(got) >= 10 {
			t.Fatalf("len = %d, want a strict non-empty suffix", len(got))
		}
		if got[len(got)-1].Content != "latest" {
			t.Errorf("newest message dropped")
		}
		if CountMessages(e, "", got) > 40 {
			t.Errorf("fitted transcript exceeds budget: %d", CountMessages(e, "", got))
		}
	})

	t.Run("newest survives a tiny budget", func(t *testing.T) {
		got := FitTranscript(e, strings.Repeat("s", 400), "", msgs, 5)
		if len(got) != 1 || got[0].Content != "latest" {
			t.Errorf("got %#v", got)
		}
	})
}
