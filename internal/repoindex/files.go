package repoindex

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// Directory names never descended into.
var defaultExcludes = map[string]bool{
	"node_modules": true, ".git": true, "__pycache__": true,
	".venv": true, "venv": true, "dist": true, "build": true,
	".next": true, ".nuxt": true, "target": true, ".pytest_cache": true,
	".mypy_cache": true, ".tox": true, ".eggs": true, ".DS_Store": true,
	".idea": true, ".vscode": true, "vendor": true, "bin": true,
	"obj": true, "packages": true, ".vs": true, "log": true,
}

// supportedExtensions is the indexable allow-list: mainstream
// languages, configs, docs, plus the VB6 and Pascal legacy families.
var supportedExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".java": true, ".go": true, ".rs": true, ".rb": true, ".php": true,
	".cs": true, ".cpp": true, ".c": true, ".h": true, ".swift": true,
	".kt": true, ".scala": true, ".sql": true, ".sh": true,
	".yaml": true, ".yml": true, ".json": true, ".xml": true, ".md": true,
	".frm": true, ".bas": true, ".cls": true, ".ctl": true,
	".dsr": true, ".dca": true, ".dsx": true, ".vb": true,
	".pas": true, ".dfm": true, ".dpr": true,
}

var extensionToLanguage = map[string]string{
	".py": "Python", ".js": "JavaScript", ".ts": "TypeScript",
	".tsx": "TypeScript", ".jsx": "JavaScript", ".java": "Java",
	".go": "Go", ".rs": "Rust", ".rb": "Ruby", ".php": "PHP",
	".cs": "C#", ".cpp": "C++", ".c": "C", ".h": "C/C++ Header",
	".swift": "Swift", ".kt": "Kotlin", ".scala": "Scala",
	".sql": "SQL", ".sh": "Shell", ".yaml": "YAML", ".yml": "YAML",
	".json": "JSON", ".xml": "XML", ".md": "Markdown",
	".frm": "Visual Basic", ".bas": "Visual Basic", ".cls": "Visual Basic",
	".ctl": "Visual Basic", ".dsr": "Visual Basic", ".dca": "Visual Basic",
	".dsx": "Visual Basic", ".vb": "Visual Basic .NET",
	".pas": "Pascal", ".dfm": "Delphi Form", ".dpr": "Pascal",
}

// Language maps an extension to its language name.
func Language(ext string) string {
	if lang, ok := extensionToLanguage[strings.ToLower(ext)]; ok {
		return lang
	}
	return "Unknown"
}

// listFiles walks root and returns relative slash-separated paths of
// indexable files: no excluded path component, supported extension,
// within the size limit.
func listFiles(root string, extraExcludes []string, maxFileSize int64) ([]string, error) {
	excludes := make(map[string]bool, len(defaultExcludes)+len(extraExcludes))
	for name := range defaultExcludes {
		excludes[name] = true
	}
	for _, name := range extraExcludes {
		excludes[name] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && excludes[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		for _, part := range strings.Split(rel, "/") {
			if excludes[part] {
				return nil
			}
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxFileSize {
			return nil
		}

		files = append(files, rel)
		return nil
	})
	return files, err
}
