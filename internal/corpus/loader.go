// Package corpus turns a directory of source documents into the ordered
// chunk sequence the vector index is built from.
package corpus

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

const (
	// FallbackChunk keeps the index non-empty when the corpus directory is
	// missing or yields no usable text.
	FallbackChunk = "Default roast: Your code is so dry it's a fire hazard."

	defaultChunkSize    = 500
	defaultMaxFileBytes = 2 << 20 // 2MB per file
	defaultMaxChars     = 200_000
)

// themeTagRe matches the optional [THEME:label] prefix on corpus lines.
var themeTagRe = regexp.MustCompile(`(?i)^\[THEME:(\w+)\]\s*`)

// Extractor converts an opaque document format (e.g. PDF) into plain text.
type Extractor func(path string) (string, error)

// Config bounds what the loader reads and how it chunks.
type Config struct {
	Dir          string
	ChunkSize    int
	MaxFileBytes int64
	MaxChars     int
}

// Loader reads a corpus directory and produces fixed-size text chunks with a
// parallel sequence of theme labels. Loading never fails: a missing or empty
// corpus degrades to a single fallback chunk.
type Loader struct {
	cfg        Config
	extractors map[string]Extractor
	logger     *zap.Logger
}

func NewLoader(cfg Config, logger *zap.Logger) *Loader {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = defaultMaxFileBytes
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		cfg:        cfg,
		extractors: make(map[string]Extractor),
		logger:     logger,
	}
}

// RegisterExtractor wires a text extractor for an additional file extension
// (lowercase, with leading dot), e.g. ".pdf".
func (l *Loader) RegisterExtractor(ext string, fn Extractor) {
	l.extractors[strings.ToLower(ext)] = fn
}

// Load reads the corpus directory and returns the chunk texts plus a parallel
// slice of theme labels (empty string for untagged chunks). The two slices
// are always the same length and never empty.
func (l *Loader) Load() (chunks []string, themes []string) {
	text := l.readAll()
	chunks, themes = l.chunk(text)
	if len(chunks) == 0 {
		l.logger.Warn("corpus produced no chunks, using fallback", zap.String("dir", l.cfg.Dir))
		return []string{FallbackChunk}, []string{""}
	}
	l.logger.Info("corpus loaded", zap.String("dir", l.cfg.Dir), zap.Int("chunks", len(chunks)))
	return chunks, themes
}

// readAll concatenates the extracted text of every readable corpus file,
// capped at MaxChars.
func (l *Loader) readAll() string {
	if err := os.MkdirAll(l.cfg.Dir, 0o755); err != nil {
		l.logger.Warn("cannot create corpus directory", zap.String("dir", l.cfg.Dir), zap.Error(err))
		return ""
	}

	entries, err := os.ReadDir(l.cfg.Dir)
	if err != nil {
		l.logger.Warn("cannot read corpus directory", zap.String("dir", l.cfg.Dir), zap.Error(err))
		return ""
	}

	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(l.cfg.Dir, entry.Name())
		info, err := entry.Info()
		if err != nil || info.Size() > l.cfg.MaxFileBytes {
			l.logger.Warn("skipping corpus file", zap.String("file", entry.Name()))
			continue
		}

		var content string
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		switch {
		case ext == ".txt" || ext == ".md":
			data, err := os.ReadFile(path)
			if err != nil {
				l.logger.Warn("unreadable corpus file", zap.String("file", entry.Name()), zap.Error(err))
				continue
			}
			content = string(data)
		default:
			extract, ok := l.extractors[ext]
			if !ok {
				continue
			}
			content, err = extract(path)
			if err != nil {
				l.logger.Warn("extraction failed", zap.String("file", entry.Name()), zap.Error(err))
				continue
			}
		}

		b.WriteString(stripNonPrintable(content))
		b.WriteString("\n")
		if b.Len() >= l.cfg.MaxChars {
			break
		}
	}

	text := b.String()
	if len(text) > l.cfg.MaxChars {
		text = text[:l.cfg.MaxChars]
	}
	return text
}

// chunk splits the corpus text line by line, strips theme tags, and sub-chunks
// long lines at the configured size. Comment lines (leading '#') and blank
// lines are dropped.
func (l *Loader) chunk(text string) (chunks []string, themes []string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		theme := ""
		if m := themeTagRe.FindStringSubmatch(line); m != nil {
			theme = strings.ToLower(m[1])
			line = strings.TrimSpace(line[len(m[0]):])
		}
		if line == "" {
			continue
		}

		for i := 0; i < len(line); i += l.cfg.ChunkSize {
			end := i + l.cfg.ChunkSize
			if end > len(line) {
				end = len(line)
			}
			sub := strings.TrimSpace(line[i:end])
			if sub == "" {
				continue
			}
			chunks = append(chunks, sub)
			themes = append(themes, theme)
		}
	}
	return chunks, themes
}

// stripNonPrintable removes control and non-printable characters, preserving
// newlines and tabs.
func stripNonPrintable(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if !unicode.IsPrint(r) {
			return -1
		}
		return r
	}, s)
}
