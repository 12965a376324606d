package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestUserMessage(t *testing.T) {
	if got := UserMessage(nil, "en-US"); got != "" {
		t.Fatalf("expected empty message for nil, got %q", got)
	}
	if got := UserMessage(stderrors.New("boom"), "en-US"); got != "An unexpected error occurred." {
		t.Fatalf("unexpected generic message %q", got)
	}

	err := fmt.Errorf("verify: %w", WithMetadata(CodeGameFolderNotFound, "missing", map[string]string{"folder": "Space_Shooter"}))
	if got := UserMessage(err, "fr-FR"); got != "The game folder Space_Shooter could not be found." {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestUserMessageUsesLocaleCatalog(t *testing.T) {
	err := WithMetadata(CodeIngestFailed, "ingest", map[string]string{"path": "audio/blip.wav"})
	if got := UserMessage(err, "pt-BR"); got != "O recurso audio/blip.wav não pôde ser carregado." {
		t.Fatalf("unexpected pt-BR message %q", got)
	}
	if got := UserMessage(err, "pt"); got != "O recurso audio/blip.wav não pôde ser carregado." {
		t.Fatalf("expected pt to resolve to pt-BR, got %q", got)
	}
}
