// Package harness generates the C wrapper program that invokes a
// player-submitted function with concrete test case inputs and prints
// the result in a comparable form.
package harness

import (
	"fmt"
	"strings"

	"github.com/codequest/quest-engine/internal/models"
)

// Generate builds a complete C translation unit: standard includes, the
// player's code verbatim, and a main() that calls the quest function with
// the test case inputs as C literals and prints the stringified return
// value followed by a newline.
func Generate(userCode string, sig *models.FunctionSignature, tc models.TestCase) (string, error) {
	if sig == nil {
		return "", fmt.Errorf("function signature is required")
	}

	args, err := FormatArgs(sig.Params, tc.Input)
	if err != nil {
		return "", err
	}

	verb, err := printfVerb(sig.ReturnType)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("#include <stdio.h>\n")
	b.WriteString("#include <stdlib.h>\n")
	b.WriteString("#include <string.h>\n\n")
	b.WriteString(userCode)
	b.WriteString("\n\nint main(void) {\n")

	call := fmt.Sprintf("%s(%s)", sig.Name, strings.Join(args, ", "))
	if sig.ReturnType == models.TypeVoid {
		b.WriteString("    " + call + ";\n")
		b.WriteString("    printf(\"done\\n\");\n")
	} else {
		fmt.Fprintf(&b, "    %s result = %s;\n", sig.ReturnType, call)
		fmt.Fprintf(&b, "    printf(\"%s\\n\", result);\n", verb)
	}

	b.WriteString("    return 0;\n}\n")
	return b.String(), nil
}

// FormatArgs renders one C literal per parameter. Arity or type
// mismatches are errors; the catalog loader runs this at startup so they
// surface as load-time failures, not per-submission ones.
func FormatArgs(params []models.Parameter, input []any) ([]string, error) {
	if len(params) != len(input) {
		return nil, fmt.Errorf("parameter count mismatch: signature has %d, test case has %d", len(params), len(input))
	}

	args := make([]string, len(params))
	for i, p := range params {
		arg, err := FormatArg(p.Type, input[i])
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		args[i] = arg
	}
	return args, nil
}

// FormatArg renders a single typed value as a C literal.
func FormatArg(t models.CType, v any) (string, error) {
	switch t {
	case models.TypeInt, models.TypeLong, models.TypeShort:
		n, ok := asInt64(v)
		if !ok {
			return "", fmt.Errorf("expected integer for %s, got %T", t, v)
		}
		return fmt.Sprintf("%d", n), nil

	case models.TypeUnsignedInt, models.TypeUnsignedLong, models.TypeSizeT:
		n, ok := asInt64(v)
		if !ok || n < 0 {
			return "", fmt.Errorf("expected unsigned integer for %s, got %v", t, v)
		}
		return fmt.Sprintf("%d", n), nil

	case models.TypeFloat, models.TypeDouble:
		f, ok := asFloat64(v)
		if !ok {
			return "", fmt.Errorf("expected number for %s, got %T", t, v)
		}
		return fmt.Sprintf("%.6f", f), nil

	case models.TypeChar:
		s, ok := v.(string)
		if !ok || len(s) != 1 {
			return "", fmt.Errorf("expected single-character string for char, got %v", v)
		}
		return fmt.Sprintf("'%s'", s), nil

	case models.TypeString:
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("expected string for char*, got %T", v)
		}
		return `"` + escapeC(s) + `"`, nil

	case models.TypeIntPtr:
		return formatIntPtr(v)

	default:
		return "", fmt.Errorf("unsupported parameter type %q", t)
	}
}

// formatIntPtr accepts the string "NULL", a scalar integer (passed as a
// compound-literal pointer), or an integer array (passed as a compound-
// literal array that decays to a pointer).
func formatIntPtr(v any) (string, error) {
	if s, ok := v.(string); ok {
		if s == "NULL" {
			return "NULL", nil
		}
		return "", fmt.Errorf("expected NULL, integer or array for int*, got %q", s)
	}
	if arr, ok := v.([]any); ok {
		elems := make([]string, len(arr))
		for i, e := range arr {
			n, ok := asInt64(e)
			if !ok {
				return "", fmt.Errorf("array element %d must be an integer, got %T", i, e)
			}
			elems[i] = fmt.Sprintf("%d", n)
		}
		return fmt.Sprintf("(int[]){ %s }", strings.Join(elems, ", ")), nil
	}
	if n, ok := asInt64(v); ok {
		return fmt.Sprintf("&(int){%d}", n), nil
	}
	return "", fmt.Errorf("expected NULL, integer or array for int*, got %T", v)
}

// printfVerb returns the printf conversion for a return type.
func printfVerb(t models.CType) (string, error) {
	switch t {
	case models.TypeInt, models.TypeShort:
		return "%d", nil
	case models.TypeLong:
		return "%ld", nil
	case models.TypeUnsignedInt:
		return "%u", nil
	case models.TypeUnsignedLong, models.TypeSizeT:
		return "%lu", nil
	case models.TypeFloat:
		return "%f", nil
	case models.TypeDouble:
		return "%lf", nil
	case models.TypeChar:
		return "%c", nil
	case models.TypeString:
		return "%s", nil
	case models.TypeVoid:
		return "", nil
	default:
		return "", fmt.Errorf("unsupported return type %q", t)
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		// YAML decodes bare integers as int, but JSON round-trips
		// produce float64; accept whole numbers only.
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func escapeC(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\t", `\t`,
		"\r", `\r`,
	)
	return r.Replace(s)
}
