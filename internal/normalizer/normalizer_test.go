package normalizer

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/types"
)

// buildDocx 构造一个最小可解析的DOCX文件
func buildDocx(t *testing.T, documentXML string, fontTableXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)

	if fontTableXML != "" {
		fw, err := zw.Create("word/fontTable.xml")
		require.NoError(t, err)
		_, err = fw.Write([]byte(fontTableXML))
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNormalize_UnsupportedFormat(t *testing.T) {
	n, err := New(context.Background())
	require.NoError(t, err)

	_, err = n.Normalize(context.Background(), "r-1", []byte("hello"), types.FileType("xls"))
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrUnsupportedFormat)
}

func TestNormalize_EmptyContent(t *testing.T) {
	n, err := New(context.Background())
	require.NoError(t, err)

	_, err = n.Normalize(context.Background(), "r-2", nil, types.FileTypePDF)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrCorruptDocument)
}

func TestNormalize_DeclaredTypeMismatch(t *testing.T) {
	n, err := New(context.Background())
	require.NoError(t, err)

	// 声明为PDF但内容是纯文本
	_, err = n.Normalize(context.Background(), "r-3", []byte("just some text"), types.FileTypePDF)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrCorruptDocument)
}

func TestNormalize_DocxHappyPath(t *testing.T) {
	documentXML := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>张三</w:t></w:r></w:p>
    <w:p><w:r><w:t>• 负责后端服务开发</w:t></w:r></w:p>
  </w:body>
</w:document>`
	fontTableXML := `<?xml version="1.0"?>
<w:fonts xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:font w:name="Calibri"/>
  <w:font w:name="宋体"/>
</w:fonts>`

	n, err := New(context.Background())
	require.NoError(t, err)

	doc, err := n.Normalize(context.Background(), "r-4", buildDocx(t, documentXML, fontTableXML), types.FileTypeDOCX)
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "张三")
	assert.Contains(t, doc.Text, "负责后端服务开发")
	assert.True(t, doc.Stats.BulletUsed)
	assert.Equal(t, []string{"Calibri", "宋体"}, doc.Stats.Fonts)
	assert.False(t, doc.NeedsOCR())
}

func TestNormalize_DocxMissingDocumentXML(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("some/other.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<x/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	n, err := New(context.Background())
	require.NoError(t, err)

	_, err = n.Normalize(context.Background(), "r-5", buf.Bytes(), types.FileTypeDOCX)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrCorruptDocument)
}

func TestNormalize_ImageGoesToOCRPath(t *testing.T) {
	// 1x1 PNG
	png := []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0D, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x62, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}

	n, err := New(context.Background())
	require.NoError(t, err)

	doc, err := n.Normalize(context.Background(), "r-6", png, types.FileTypeImage)
	require.NoError(t, err)
	assert.True(t, doc.NeedsOCR())
	assert.Len(t, doc.PageImages, 1)
}

func TestDetectBullets(t *testing.T) {
	assert.True(t, detectBullets("经历\n- 搭建CI流水线\n"))
	assert.True(t, detectBullets("• 维护监控系统"))
	assert.False(t, detectBullets("没有使用项目符号的简历文本"))
}

func TestExtractPDFFontNames(t *testing.T) {
	raw := []byte(`<< /BaseFont /ABCDEF+Helvetica >> << /BaseFont /Times-Roman >> << /BaseFont /ABCDEF+Helvetica >>`)
	fonts := extractPDFFontNames(raw)
	assert.Equal(t, []string{"Helvetica", "Times-Roman"}, fonts)
}

func TestCountPDFPages(t *testing.T) {
	raw := []byte(`/Type /Pages /Type /Page>> /Type/Page>>`)
	assert.Equal(t, 2, countPDFPages(raw))
}
