package constants

// 流水线作业状态常量
// 状态机只允许前向推进，FAILED 可从任意非终态进入并保留最后完成阶段的产物
const (
	// StatusPending 已上传，尚未开始处理
	StatusPending = "PENDING"
	// StatusExtracting 结构化提取进行中
	StatusExtracting = "EXTRACTING"
	// StatusExtracted 结构化提取完成
	StatusExtracted = "EXTRACTED"
	// StatusAnalyzing 评分分析进行中
	StatusAnalyzing = "ANALYZING"
	// StatusAnalyzed 评分分析完成
	StatusAnalyzed = "ANALYZED"
	// StatusImproving 改进建议生成中
	StatusImproving = "IMPROVING"
	// StatusDone 全部阶段完成
	StatusDone = "DONE"
	// StatusFailed 处理失败，终态
	StatusFailed = "FAILED"
)

// allowedTransitions 每个状态允许进入的下一状态集合
var allowedTransitions = map[string][]string{
	StatusPending:    {StatusExtracting, StatusFailed},
	StatusExtracting: {StatusExtracted, StatusFailed},
	StatusExtracted:  {StatusAnalyzing, StatusFailed},
	StatusAnalyzing:  {StatusAnalyzed, StatusFailed},
	StatusAnalyzed:   {StatusImproving, StatusFailed},
	StatusImproving:  {StatusDone, StatusFailed},
}

// AllowedStatusesForExtraction 允许发起结构化提取的状态集合。
// 显式覆盖式重提取可以从任何已结算的非FAILED状态发起。
var AllowedStatusesForExtraction = []string{StatusPending, StatusExtracted, StatusAnalyzed, StatusDone}

// AllowedStatusesForAnalysis 允许发起评分分析的状态集合
var AllowedStatusesForAnalysis = []string{StatusExtracted, StatusAnalyzed, StatusDone}

// IsStatusAllowed 判断当前状态是否在给定集合中
func IsStatusAllowed(status string, allowed []string) bool {
	for _, s := range allowed {
		if s == status {
			return true
		}
	}
	return false
}

// CanTransition 判断状态机是否允许从 from 推进到 to
func CanTransition(from, to string) bool {
	return IsStatusAllowed(to, allowedTransitions[from])
}

// IsTerminal 判断状态是否为终态
func IsTerminal(status string) bool {
	return status == StatusDone || status == StatusFailed
}
