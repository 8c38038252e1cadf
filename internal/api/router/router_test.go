package router

import (
	"testing"

	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/stretchr/testify/assert"

	"resume-intel-go/internal/pipeline"
)

func TestStatusForError(t *testing.T) {
	assert.Equal(t, consts.StatusBadRequest, statusForError(pipeline.NewUnsupportedFormatError("r1", "exe")))
	assert.Equal(t, consts.StatusBadRequest, statusForError(pipeline.NewCorruptDocumentError("r1", "坏字节流")))
	assert.Equal(t, consts.StatusNotFound, statusForError(pipeline.ErrResumeNotFound))
	assert.Equal(t, consts.StatusConflict, statusForError(pipeline.ErrResumeBusy))
	assert.Equal(t, consts.StatusConflict, statusForError(pipeline.ErrResumeNotExtracted))
	assert.Equal(t, consts.StatusServiceUnavailable, statusForError(pipeline.NewExtractionUnavailableError("r1", "超时")))
	assert.Equal(t, consts.StatusServiceUnavailable, statusForError(pipeline.NewEnrichmentUnavailableError("u1", "github限流")))
	assert.Equal(t, consts.StatusInternalServerError, statusForError(assert.AnError))
}
