package utils

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var markdownParser = goldmark.New().Parser()

// StripMarkdown 将 Markdown 转为纯文本，微信不渲染 Markdown 标记
func StripMarkdown(src string) string {
	if strings.TrimSpace(src) == "" {
		return src
	}

	source := []byte(src)
	doc := markdownParser.Parse(text.NewReader(source))

	var buf bytes.Buffer
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				buf.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					buf.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		case *ast.CodeSpan:
			// 行内代码的子节点为 Text，正常遍历
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(source))
				}
				ensureBlankLine(&buf)
				return ast.WalkSkipChildren, nil
			}
		case *ast.ListItem:
			if entering {
				buf.WriteString("- ")
			} else if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
				buf.WriteByte('\n')
			}
		case *ast.Paragraph, *ast.Heading, *ast.Blockquote:
			if !entering {
				if _, inList := n.Parent().(*ast.ListItem); inList {
					break
				}
				ensureBlankLine(&buf)
			}
		case *ast.ThematicBreak:
			if entering {
				ensureBlankLine(&buf)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return src
	}

	return strings.TrimSpace(buf.String())
}

// ensureBlankLine 段落之间保留一个空行
func ensureBlankLine(buf *bytes.Buffer) {
	b := buf.Bytes()
	switch {
	case len(b) == 0:
	case bytes.HasSuffix(b, []byte("\n\n")):
	case bytes.HasSuffix(b, []byte("\n")):
		buf.WriteByte('\n')
	default:
		buf.WriteString("\n\n")
	}
}
