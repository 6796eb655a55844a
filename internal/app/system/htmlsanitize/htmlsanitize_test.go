package htmlsanitize_test

import (
	"testing"

	"github.com/dalemusser/eventhub/internal/app/system/htmlsanitize"
)

func TestPlainText_Empty(t *testing.T) {
	if got := htmlsanitize.PlainText(""); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestPlainText_Unchanged(t *testing.T) {
	if got := htmlsanitize.PlainText("Río Runners"); got != "Río Runners" {
		t.Errorf("expected plain text unchanged, got %q", got)
	}
}

func TestPlainText_StripsTags(t *testing.T) {
	if got := htmlsanitize.PlainText("<b>Bold</b> Club"); got != "Bold Club" {
		t.Errorf("expected tags stripped, got %q", got)
	}
}

func TestPlainText_DropsScript(t *testing.T) {
	got := htmlsanitize.PlainText("Hello<script>alert('xss')</script>")
	if got != "Hello" {
		t.Errorf("expected script removed, got %q", got)
	}
}

func TestPlainText_KeepsAmpersand(t *testing.T) {
	if got := htmlsanitize.PlainText("  Smith & Sons  "); got != "Smith & Sons" {
		t.Errorf("expected ampersand preserved and trimmed, got %q", got)
	}
}
