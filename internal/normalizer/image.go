package normalizer

import (
	"bytes"
	"image"

	_ "image/jpeg"
	_ "image/png"

	"resume-intel-go/internal/pipeline"
	"resume-intel-go/internal/types"
)

// normalizeImage 图片归一化路径：校验可解码后作为单页图像传递，强制走下游OCR
func (n *Normalizer) normalizeImage(resumeID string, data []byte) (*types.NormalizedDocument, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, pipeline.NewCorruptDocumentError(resumeID, "图片解码失败: "+err.Error())
	}

	return &types.NormalizedDocument{
		PageImages: [][]byte{data},
		Stats: types.FormatStats{
			PageCount: 1,
		},
		Warnings: []string{"图片简历无法提取文本，需要OCR"},
	}, nil
}
