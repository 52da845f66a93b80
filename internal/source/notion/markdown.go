package notion

import (
	"fmt"
	"strings"
)

// RenderMarkdown converts a page's block tree into markdown. Supported
// blocks: paragraph, heading_1..3, bulleted/numbered list items,
// quote, code, image and divider. Unknown block types render as their
// plain text, which keeps content readable when the source grows a
// block type this renderer has not caught up with.
func RenderMarkdown(blocks []Block) string {
	var sb strings.Builder
	renderBlocks(&sb, blocks, 0)
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func renderBlocks(sb *strings.Builder, blocks []Block, depth int) {
	numbered := 0
	for _, b := range blocks {
		if b.Type == "numbered_list_item" {
			numbered++
		} else {
			numbered = 0
		}
		renderBlock(sb, b, depth, numbered)
	}
}

func renderBlock(sb *strings.Builder, b Block, depth, ordinal int) {
	indent := strings.Repeat("  ", depth)

	switch b.Type {
	case "paragraph":
		writeLine(sb, indent, renderRichText(b.Paragraph.RichText))
	case "heading_1":
		writeLine(sb, indent, "# "+renderRichText(b.Heading1.RichText))
	case "heading_2":
		writeLine(sb, indent, "## "+renderRichText(b.Heading2.RichText))
	case "heading_3":
		writeLine(sb, indent, "### "+renderRichText(b.Heading3.RichText))
	case "bulleted_list_item":
		sb.WriteString(indent + "- " + renderRichText(b.BulletedListItem.RichText) + "\n")
		renderBlocks(sb, b.Children, depth+1)
		return
	case "numbered_list_item":
		sb.WriteString(fmt.Sprintf("%s%d. %s\n", indent, ordinal, renderRichText(b.NumberedListItem.RichText)))
		renderBlocks(sb, b.Children, depth+1)
		return
	case "quote":
		writeLine(sb, indent, "> "+renderRichText(b.Quote.RichText))
	case "code":
		lang := b.Code.Language
		if lang == "plain text" {
			lang = ""
		}
		writeLine(sb, indent, "```"+lang+"\n"+plainText(b.Code.RichText)+"\n```")
	case "image":
		url := imageURL(b.Image)
		if url == "" {
			return
		}
		writeLine(sb, indent, "!["+plainText(b.Image.Caption)+"]("+url+")")
	case "divider":
		writeLine(sb, indent, "---")
	default:
		if text := blockPlainText(b); text != "" {
			writeLine(sb, indent, text)
		}
	}

	renderBlocks(sb, b.Children, depth)
}

func writeLine(sb *strings.Builder, indent, line string) {
	if line == "" {
		sb.WriteString("\n")
		return
	}
	sb.WriteString(indent + line + "\n\n")
}

func imageURL(img *ImageBlock) string {
	if img == nil {
		return ""
	}
	if img.External != nil && img.External.URL != "" {
		return img.External.URL
	}
	if img.File != nil {
		return img.File.URL
	}
	return ""
}

func renderRichText(parts []RichText) string {
	var sb strings.Builder
	for _, rt := range parts {
		sb.WriteString(renderRichTextPart(rt))
	}
	return sb.String()
}

func renderRichTextPart(rt RichText) string {
	text := rt.PlainText
	if a := rt.Annotations; a != nil {
		if a.Code {
			text = "`" + text + "`"
		}
		if a.Bold {
			text = "**" + text + "**"
		}
		if a.Italic {
			text = "_" + text + "_"
		}
		if a.Strikethrough {
			text = "~~" + text + "~~"
		}
	}
	if rt.Href != nil && *rt.Href != "" {
		text = "[" + text + "](" + *rt.Href + ")"
	}
	return text
}

func plainText(parts []RichText) string {
	var sb strings.Builder
	for _, rt := range parts {
		sb.WriteString(rt.PlainText)
	}
	return sb.String()
}

func blockPlainText(b Block) string {
	for _, tb := range []*TextBlock{
		b.Paragraph, b.Heading1, b.Heading2, b.Heading3,
		b.BulletedListItem, b.NumberedListItem, b.Quote,
	} {
		if tb != nil {
			return plainText(tb.RichText)
		}
	}
	return ""
}
