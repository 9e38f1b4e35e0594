package repoindex

import (
	"fmt"
	"regexp"
	"strings"
)

// Legacy VB6 designer formats carry binary property blobs and
// non-ASCII junk that poisons embeddings. Filtering keeps only the
// structural skeleton: form and control declarations, attributes, and
// procedure signatures.
var legacyExtensions = map[string]bool{
	".frm": true, ".dsr": true, ".dca": true, ".dsx": true, ".ctl": true,
}

const (
	legacyMinStructuralLines = 3
	legacyFallbackLines      = 20
)

var (
	structuralLineRe = regexp.MustCompile(`^\s*(VERSION\b|Begin VB\.|Begin \{[0-9A-Fa-f-]+\}|BeginProperty\b|EndProperty\b|End\b|Attribute\b|Option\b|Private\b|Public\b|Dim\b)`)
	propertyLineRe   = regexp.MustCompile(`^\s*[A-Za-z_][\w.]*(\(\d+\))?\s*=\s*\S`)

	formNameRe   = regexp.MustCompile(`Begin VB\.(?:Form|MDIForm|UserControl)\s+(\w+)`)
	captionRe    = regexp.MustCompile(`Caption\s*=\s*"([^"]*)"`)
	moduleNameRe = regexp.MustCompile(`Attribute VB_Name\s*=\s*"(\w+)"`)
	controlRe    = regexp.MustCompile(`Begin VB\.(\w+)\s+(\w+)`)
	procedureRe  = regexp.MustCompile(`(?m)^\s*(?:Private\s+|Public\s+|Friend\s+)?(?:Sub|Function|Property (?:Get|Let|Set))\s+(\w+)`)
)

// IsLegacyExtension reports whether ext names a VB6 designer format
// that goes through the legacy filter.
func IsLegacyExtension(ext string) bool {
	return legacyExtensions[strings.ToLower(ext)]
}

// FilterLegacySource strips a VB6 designer file down to its structural
// lines. When fewer than three structural lines survive, the first
// twenty property lines are kept instead so the document is never
// empty.
func FilterLegacySource(content string) string {
	content = stripNonASCII(content)

	var kept []string
	var properties []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimRight(line, " \t\r")
		if trimmed == "" {
			continue
		}
		if structuralLineRe.MatchString(trimmed) || propertyLineRe.MatchString(trimmed) {
			kept = append(kept, trimmed)
		}
		if propertyLineRe.MatchString(trimmed) {
			properties = append(properties, trimmed)
		}
	}

	if len(kept) < legacyMinStructuralLines {
		if len(properties) > legacyFallbackLines {
			properties = properties[:legacyFallbackLines]
		}
		return strings.Join(properties, "\n")
	}
	return strings.Join(kept, "\n")
}

// FormInfo is the structure extracted from a .frm form file.
type FormInfo struct {
	FormName   string
	ModuleName string
	Caption    string
	Controls   []string
	Procedures []string
}

// ParseFormInfo pulls the form name, caption, module, control list and
// procedure names out of a .frm file.
func ParseFormInfo(content string) FormInfo {
	info := FormInfo{}
	if m := formNameRe.FindStringSubmatch(content); m != nil {
		info.FormName = m[1]
	}
	if m := captionRe.FindStringSubmatch(content); m != nil {
		info.Caption = m[1]
	}
	if m := moduleNameRe.FindStringSubmatch(content); m != nil {
		info.ModuleName = m[1]
	}
	for _, m := range controlRe.FindAllStringSubmatch(content, -1) {
		if m[1] == "Form" || m[1] == "MDIForm" {
			continue
		}
		info.Controls = append(info.Controls, m[1]+" "+m[2])
	}
	for _, m := range procedureRe.FindAllStringSubmatch(content, -1) {
		info.Procedures = append(info.Procedures, m[1])
	}
	return info
}

// ProcessLegacyFile filters a legacy source file and, for form files,
// prepends a summary header so searches hit the form by name, title,
// or control.
func ProcessLegacyFile(ext, content string) string {
	filtered := FilterLegacySource(content)
	if strings.ToLower(ext) != ".frm" {
		return filtered
	}

	info := ParseFormInfo(content)
	var b strings.Builder
	if info.FormName != "" {
		fmt.Fprintf(&b, "FORMULARIO: %s\n", info.FormName)
	}
	if info.ModuleName != "" {
		fmt.Fprintf(&b, "MODULO: %s\n", info.ModuleName)
	}
	if info.Caption != "" {
		fmt.Fprintf(&b, "TITULO: %s\n", info.Caption)
	}
	if len(info.Controls) > 0 {
		fmt.Fprintf(&b, "CONTROLES: %s\n", strings.Join(info.Controls, ", "))
	}
	if len(info.Procedures) > 0 {
		fmt.Fprintf(&b, "PROCEDIMIENTOS: %s\n", strings.Join(info.Procedures, ", "))
	}
	if b.Len() == 0 {
		return filtered
	}
	return b.String() + "\n" + filtered
}

func stripNonASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' || (r >= 32 && r < 127) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
