package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRepositoryDocumentsAreConsistent(t *testing.T) {
	docs := []string{
		filepath.Join("..", "..", "api", "content.openapi.yaml"),
		filepath.Join("..", "..", "api", "billing.openapi.yaml"),
	}
	if err := check(docs); err != nil {
		t.Fatalf("check: %v", err)
	}
}

const docTemplate = `
paths:
  /api/things:
    get:
      responses:
        "200": { description: ok }
        "404": %s
components:
  schemas:
    ErrorResponse:
      type: object
      required: [message, error]
      properties:
        message: { type: string }
        error:
          type: string
          enum: [%s]
        requestId: { type: string }
`

const allKinds = "ValidationError, NotFoundError, UnauthorizedError, ForbiddenError, GenerationError, ParseError, PaymentProviderError, RateLimitError, InternalError"

func writeDoc(t *testing.T, response, kinds string) string {
	t.Helper()
	body := strings.Replace(docTemplate, "%s", response, 1)
	body = strings.Replace(body, "%s", kinds, 1)
	path := filepath.Join(t.TempDir(), "doc.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	return path
}

func TestCheckRejectsInconsistentDocuments(t *testing.T) {
	good := writeDoc(t, `{ $ref: "#/components/responses/Error" }`, allKinds)
	if err := check([]string{good}); err != nil {
		t.Fatalf("expected valid doc, got %v", err)
	}

	inline := writeDoc(t, `{ description: missing }`, allKinds)
	if err := check([]string{inline}); err == nil || !strings.Contains(err.Error(), "must reference") {
		t.Fatalf("expected inline error response to be rejected, got %v", err)
	}

	short := writeDoc(t, `{ $ref: "#/components/responses/Error" }`, "ValidationError")
	if err := check([]string{short}); err == nil || !strings.Contains(err.Error(), "enum is missing") {
		t.Fatalf("expected incomplete enum to be rejected, got %v", err)
	}

	extra := writeDoc(t, `{ $ref: "#/components/responses/Error" }`, allKinds+", TeapotError")
	if err := check([]string{good, extra}); err == nil || !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("expected shape mismatch between documents, got %v", err)
	}
}
