package content

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown("# Weekly\n\nHello **{{name}}**")
	if err != nil {
		t.Fatalf("RenderMarkdown() error = %v", err)
	}
	if !strings.Contains(out, "<h1>Weekly</h1>") {
		t.Errorf("missing heading: %s", out)
	}
	if !strings.Contains(out, "<strong>{{name}}</strong>") {
		t.Errorf("placeholder should survive rendering: %s", out)
	}
}

func TestSanitize(t *testing.T) {
	in := `<p onclick="steal()">Hi</p><script>alert(1)</script><a href="https://example.com/post">read</a>`
	out := Sanitize(in)

	if strings.Contains(out, "<script") || strings.Contains(out, "alert(1)") {
		t.Errorf("script not removed: %s", out)
	}
	if strings.Contains(out, "onclick") {
		t.Errorf("event handler not removed: %s", out)
	}
	if !strings.Contains(out, "<p>Hi</p>") {
		t.Errorf("paragraph lost: %s", out)
	}
	if !strings.Contains(out, `href="https://example.com/post"`) {
		t.Errorf("link lost: %s", out)
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText("<h1>Weekly</h1>\n<p>Hello   <b>there</b></p>")
	if got != "Weekly Hello there" {
		t.Errorf("PlainText() = %q", got)
	}
}

func TestExcerpt(t *testing.T) {
	short := "A short note."
	if got := Excerpt(short); got != short {
		t.Errorf("Excerpt(short) = %q", got)
	}

	exact := strings.Repeat("a", ExcerptLength)
	if got := Excerpt(exact); got != exact {
		t.Errorf("Excerpt(exact) should not be truncated")
	}

	long := strings.Repeat("é", ExcerptLength+50)
	got := Excerpt(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Excerpt(long) missing ellipsis")
	}
	if n := utf8.RuneCountInString(strings.TrimSuffix(got, "...")); n != ExcerptLength {
		t.Errorf("Excerpt(long) kept %d characters, want %d", n, ExcerptLength)
	}
}

func TestBuild(t *testing.T) {
	t.Run("html wins", func(t *testing.T) {
		out, err := Build("# ignored", "<p>Hi {{name}}</p><script>x()</script>")
		if err != nil {
			t.Fatal(err)
		}
		if out != "<p>Hi {{name}}</p>" {
			t.Errorf("Build() = %q", out)
		}
	})

	t.Run("markdown rendered", func(t *testing.T) {
		out, err := Build("Hello *world*", "")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "<em>world</em>") {
			t.Errorf("Build() = %q", out)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := Build("  ", ""); err == nil {
			t.Error("expected error for empty content")
		}
	})
}
