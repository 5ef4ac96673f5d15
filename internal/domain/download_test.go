package domain

import "testing"

func TestCreateDownloadRequestValidate(t *testing.T) {
	valid := CreateDownloadRequest{URL: "https://streamable.com/abc123"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	empty := CreateDownloadRequest{}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected validation error for missing url")
	}

	relative := CreateDownloadRequest{URL: "/just/a/path"}
	if err := relative.Validate(); err == nil {
		t.Fatal("expected validation error for relative url")
	}

	badScheme := CreateDownloadRequest{URL: "ftp://example.com/video"}
	if err := badScheme.Validate(); err == nil {
		t.Fatal("expected validation error for non-http scheme")
	}

	badHook := CreateDownloadRequest{
		URL:        "https://vimeo.com/98765",
		WebhookURL: "not-a-url",
	}
	if err := badHook.Validate(); err == nil {
		t.Fatal("expected validation error for malformed webhookUrl")
	}

	withHook := CreateDownloadRequest{
		URL:        "https://vimeo.com/98765",
		WebhookURL: "https://hooks.example.com/downloads",
	}
	if err := withHook.Validate(); err != nil {
		t.Fatalf("expected valid request with webhook, got error: %v", err)
	}
}

func TestIsTerminal(t *testing.T) {
	if IsTerminal(StatusPending) || IsTerminal(StatusProcessing) {
		t.Fatal("pending and processing must not be terminal")
	}
	if !IsTerminal(StatusCompleted) || !IsTerminal(StatusFailed) {
		t.Fatal("completed and failed must be terminal")
	}
}
