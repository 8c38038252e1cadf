package normalizer

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/types"
)

// normalizeDOCX DOCX归一化路径：解包ZIP容器，抽取document.xml的文本段落，
// 并从fontTable.xml收集字体名
func (n *Normalizer) normalizeDOCX(resumeID string, data []byte) (*types.NormalizedDocument, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, pipeline.NewCorruptDocumentError(resumeID, "无法打开DOCX容器: "+err.Error())
	}

	var docEntry, fontEntry *zip.File
	for _, f := range zr.File {
		switch f.Name {
		case "word/document.xml":
			docEntry = f
		case "word/fontTable.xml":
			fontEntry = f
		}
	}
	if docEntry == nil {
		// ZIP能打开但没有document.xml，说明不是Word文档
		return nil, pipeline.NewCorruptDocumentError(resumeID, "缺少 word/document.xml")
	}

	text, err := extractDocxText(docEntry)
	if err != nil {
		return nil, pipeline.NewCorruptDocumentError(resumeID, "解析 document.xml 失败: "+err.Error())
	}

	doc := &types.NormalizedDocument{
		Text: text,
	}
	if fontEntry != nil {
		fonts, ferr := extractDocxFonts(fontEntry)
		if ferr == nil {
			doc.Stats.Fonts = fonts
		} else {
			doc.Warnings = append(doc.Warnings, "字体表解析失败，版式评分退化为中性值")
		}
	}
	return doc, nil
}

// extractDocxText 流式遍历XML token，w:t 聚合文本，w:p 结束追加换行
func extractDocxText(entry *zip.File) (string, error) {
	rc, err := entry.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	decoder := xml.NewDecoder(rc)
	var sb strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			case "tab":
				sb.WriteString("\t")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimSpace(sb.String()), nil
}

// docxFontTable fontTable.xml 的最小映射
type docxFontTable struct {
	Fonts []struct {
		Name string `xml:"name,attr"`
	} `xml:"font"`
}

// extractDocxFonts 读取字体表中声明的字体名
func extractDocxFonts(entry *zip.File) ([]string, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	var table docxFontTable
	if err := xml.Unmarshal(raw, &table); err != nil {
		return nil, err
	}

	var fonts []string
	for _, f := range table.Fonts {
		if f.Name != "" {
			fonts = append(fonts, f.Name)
		}
	}
	return fonts, nil
}
