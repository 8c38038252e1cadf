package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// ResumeModulePrefix 简历模块
	ResumeModulePrefix = "resume"
	// AnalysisModulePrefix 分析模块
	AnalysisModulePrefix = "analysis"
	// EnrichmentModulePrefix 外部数据模块
	EnrichmentModulePrefix = "enrich"

	// EntityExtraction 结构化提取实体
	EntityExtraction = "extraction"
	// EntityResult 分析结果实体
	EntityResult = "result"
	// EntityStats 活动统计实体
	EntityStats = "stats"

	// KeyExtractionByContentHash 结构化提取缓存 (STRING, JSON)
	// 格式: app:resume:extraction:{contentHash}
	KeyExtractionByContentHash = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityExtraction + ":%s"

	// KeyAnalysisResult 分析结果缓存 (STRING, JSON)
	// 格式: app:analysis:result:{cacheKey}，cacheKey 由内容哈希与JD哈希派生
	KeyAnalysisResult = AppPrefix + ":" + AnalysisModulePrefix + ":" + EntityResult + ":%s"

	// KeyEnrichmentStats 外部数据统计缓存 (STRING, JSON)
	// 格式: app:enrich:stats:{source}:{userID}
	KeyEnrichmentStats = AppPrefix + ":" + EnrichmentModulePrefix + ":" + EntityStats + ":%s:%s"
)
