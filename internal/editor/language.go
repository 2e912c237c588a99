package editor

import (
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// languageIDs maps file extensions to editor language identifiers where they
// differ from what a lexer alias would give.
var languageIDs = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "typescriptreact",
	".js":    "javascript",
	".jsx":   "javascriptreact",
	".py":    "python",
	".rs":    "rust",
	".rb":    "ruby",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".sh":    "shellscript",
	".bash":  "shellscript",
	".zsh":   "shellscript",
	".ps1":   "powershell",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".html":  "html",
	".css":   "css",
	".scss":  "scss",
	".sql":   "sql",
	".php":   "php",
	".swift": "swift",
	".lua":   "lua",
	".vue":   "vue",
}

// LanguageFromPath guesses the editor language identifier for a file name.
// It returns "" when nothing matches.
func LanguageFromPath(path string) string {
	if path == "" {
		return ""
	}

	ext := strings.ToLower(filepath.Ext(path))
	if id, ok := languageIDs[ext]; ok {
		return id
	}

	lexer := lexers.Match(filepath.Base(path))
	if lexer == nil {
		return ""
	}
	cfg := lexer.Config()
	if len(cfg.Aliases) > 0 {
		return cfg.Aliases[0]
	}
	return strings.ToLower(cfg.Name)
}
