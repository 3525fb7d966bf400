package harness

import (
	"strings"
	"testing"

	"github.com/codequest/quest-engine/internal/models"
)

func TestGenerateSimpleHarness(t *testing.T) {
	sig := &models.FunctionSignature{
		Name:       "add",
		ReturnType: models.TypeInt,
		Params: []models.Parameter{
			{Name: "a", Type: models.TypeInt},
			{Name: "b", Type: models.TypeInt},
		},
	}
	tc := models.TestCase{Input: []any{2, 3}, Expected: "5", Sample: true}

	src, err := Generate("int add(int a, int b) { return a + b; }", sig, tc)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !strings.Contains(src, "int result = add(2, 3);") {
		t.Errorf("missing call statement, got:\n%s", src)
	}
	if !strings.Contains(src, `printf("%d\n", result);`) {
		t.Errorf("missing print statement, got:\n%s", src)
	}
	if !strings.Contains(src, "#include <stdio.h>") {
		t.Error("missing stdio include")
	}
}

func TestGenerateVoidFunction(t *testing.T) {
	sig := &models.FunctionSignature{
		Name:       "hello",
		ReturnType: models.TypeVoid,
	}
	tc := models.TestCase{Expected: "Hello, World!", Sample: true}

	src, err := Generate(`void hello() { printf("Hello, World!\n"); }`, sig, tc)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !strings.Contains(src, "hello();") {
		t.Errorf("missing void call, got:\n%s", src)
	}
	if !strings.Contains(src, `printf("done\n");`) {
		t.Errorf("void functions should print done, got:\n%s", src)
	}
}

func TestGenerateArityMismatch(t *testing.T) {
	sig := &models.FunctionSignature{
		Name:       "inc",
		ReturnType: models.TypeInt,
		Params:     []models.Parameter{{Name: "n", Type: models.TypeInt}},
	}
	tc := models.TestCase{Input: []any{1, 2}, Expected: "2"}

	if _, err := Generate("int inc(int n) { return n + 1; }", sig, tc); err == nil {
		t.Fatal("expected arity mismatch error")
	}
}

func TestFormatArgPointerVariants(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  string
	}{
		{"null keyword", "NULL", "NULL"},
		{"scalar", 42, "&(int){42}"},
		{"array", []any{10, 20, 30}, "(int[]){ 10, 20, 30 }"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := FormatArg(models.TypeIntPtr, c.value)
			if err != nil {
				t.Fatalf("FormatArg failed: %v", err)
			}
			if got != c.want {
				t.Errorf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestFormatArgStringEscaping(t *testing.T) {
	got, err := FormatArg(models.TypeString, "say \"hi\"\n")
	if err != nil {
		t.Fatalf("FormatArg failed: %v", err)
	}
	want := `"say \"hi\"\n"`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestFormatArgFloat(t *testing.T) {
	got, err := FormatArg(models.TypeDouble, 2.5)
	if err != nil {
		t.Fatalf("FormatArg failed: %v", err)
	}
	if got != "2.500000" {
		t.Errorf("got %q, want 2.500000", got)
	}
}

func TestFormatArgRejectsWrongTypes(t *testing.T) {
	if _, err := FormatArg(models.TypeInt, "not a number"); err == nil {
		t.Error("expected error for string passed as int")
	}
	if _, err := FormatArg(models.TypeChar, "ab"); err == nil {
		t.Error("expected error for multi-character char")
	}
	if _, err := FormatArg(models.TypeUnsignedInt, -1); err == nil {
		t.Error("expected error for negative unsigned")
	}
}
