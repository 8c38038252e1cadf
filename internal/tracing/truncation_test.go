package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "13*******78", MaskPII("13812345678"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	long := "abcdefghijklmnopqrstuvwxyz"
	got := TruncateString(long, 11)
	assert.LessOrEqual(t, len([]rune(got)), 11)
	assert.Contains(t, got, "...")
}

func TestSafeAttributeValue(t *testing.T) {
	// 敏感属性名走掩码
	assert.Equal(t, "张*", SafeAttributeValue("contact.name", "张三", 100))
	// 普通属性名只截断
	assert.Equal(t, "golang", SafeAttributeValue("skill", "golang", 100))
}
