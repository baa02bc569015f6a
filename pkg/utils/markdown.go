package utils

import (
	"bytes"
	"log"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdownOnce     sync.Once
	markdownRenderer goldmark.Markdown
)

func markdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		// Raw HTML in replies is never passed through: goldmark omits it
		// unless html.WithUnsafe is set.
		markdownRenderer = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return markdownRenderer
}

// RenderMarkdown 将助手回复的 Markdown 文本渲染为 HTML 片段。
func RenderMarkdown(source string) string {
	if source == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := markdown().Convert([]byte(source), &buf); err != nil {
		log.Printf("failed to render markdown: %v", err)
		return ""
	}
	return buf.String()
}
