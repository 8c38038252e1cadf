package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-intel-go/internal/constants"
	"resume-intel-go/internal/types"
)

//
// 内存版依赖实现
//

type fakeStore struct {
	mu       sync.Mutex
	resumes  map[string]*types.Resume
	statuses map[string]string
	history  map[string][]string
	analyses []*types.AnalysisResult
	improved map[string][]types.Improvement
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		resumes:  make(map[string]*types.Resume),
		statuses: make(map[string]string),
		history:  make(map[string][]string),
		improved: make(map[string][]types.Improvement),
	}
}

func (s *fakeStore) SaveResume(ctx context.Context, resume *types.Resume, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *resume
	s.resumes[resume.ResumeID] = &cp
	s.statuses[resume.ResumeID] = status
	s.history[resume.ResumeID] = append(s.history[resume.ResumeID], status)
	return nil
}

func (s *fakeStore) GetResume(ctx context.Context, resumeID string) (*types.Resume, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resumes[resumeID]
	if !ok {
		return nil, "", nil
	}
	cp := *r
	return &cp, s.statuses[resumeID], nil
}

func (s *fakeStore) UpdateStructured(ctx context.Context, resumeID string, structured *types.StructuredResume, stats *types.FormatStats, textPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.resumes[resumeID]; ok {
		r.Structured = structured
		r.FormatStats = stats
	}
	return nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, resumeID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[resumeID] = status
	s.history[resumeID] = append(s.history[resumeID], status)
	return nil
}

func (s *fakeStore) SaveAnalysis(ctx context.Context, result *types.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses = append(s.analyses, result)
	return nil
}

func (s *fakeStore) SaveImprovements(ctx context.Context, resumeID string, improvements []types.Improvement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.improved[resumeID] = improvements
	return nil
}

func (s *fakeStore) status(resumeID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[resumeID]
}

type fakeBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: make(map[string][]byte)}
}

func (b *fakeBlobs) PutRaw(ctx context.Context, resumeID string, fileType types.FileType, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path := "raw/" + resumeID
	b.data[path] = data
	return path, nil
}

func (b *fakeBlobs) GetRaw(ctx context.Context, path string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[path]
	if !ok {
		return nil, errors.New("object not found")
	}
	return d, nil
}

func (b *fakeBlobs) PutNormalizedText(ctx context.Context, resumeID, text string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	path := "text/" + resumeID
	b.data[path] = []byte(text)
	return path, nil
}

type fakeCache struct {
	mu          sync.Mutex
	extractions map[string]*types.StructuredResume
	analyses    map[string]*types.AnalysisResult
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		extractions: make(map[string]*types.StructuredResume),
		analyses:    make(map[string]*types.AnalysisResult),
	}
}

func (c *fakeCache) GetExtraction(ctx context.Context, contentHash string) (*types.StructuredResume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.extractions[contentHash]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (c *fakeCache) SetExtraction(ctx context.Context, contentHash string, structured *types.StructuredResume) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *structured
	c.extractions[contentHash] = &cp
	return nil
}

func (c *fakeCache) GetAnalysis(ctx context.Context, cacheKey string) (*types.AnalysisResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.analyses[cacheKey]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (c *fakeCache) SetAnalysis(ctx context.Context, cacheKey string, result *types.AnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *result
	c.analyses[cacheKey] = &cp
	return nil
}

type fakePublisher struct {
	extracted int32
	analyzed  int32
}

func (p *fakePublisher) PublishExtracted(ctx context.Context, resumeID string) error {
	atomic.AddInt32(&p.extracted, 1)
	return nil
}

func (p *fakePublisher) PublishAnalyzed(ctx context.Context, resumeID string) error {
	atomic.AddInt32(&p.analyzed, 1)
	return nil
}

// fakeNormalizer 直接把原始字节当作文本
type fakeNormalizer struct{}

func (n *fakeNormalizer) Normalize(ctx context.Context, resumeID string, data []byte, declared types.FileType) (*types.NormalizedDocument, error) {
	return &types.NormalizedDocument{
		Text:  string(data),
		Stats: types.FormatStats{BulletUsed: true},
	}, nil
}

type fakeExtractor struct {
	calls int32
	errs  []error
	block chan struct{}
}

func (e *fakeExtractor) Extract(ctx context.Context, content string) (*types.StructuredResume, error) {
	n := atomic.AddInt32(&e.calls, 1)
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, NewExtractionUnavailableError("", ctx.Err().Error())
		}
	}
	if int(n) <= len(e.errs) && e.errs[n-1] != nil {
		return nil, e.errs[n-1]
	}
	return &types.StructuredResume{
		Sections: []types.ResumeSection{{Type: types.SectionExperience, Content: content}},
		RawText:  content,
	}, nil
}

type fakeScorer struct {
	calls     int32
	err       error
	score     int
	block     chan struct{}
	roleMatch *int
}

func (s *fakeScorer) Score(ctx context.Context, structured *types.StructuredResume, stats *types.FormatStats, jobDescription string) (*types.AnalysisResult, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &types.AnalysisResult{
		ATSScore:  s.score,
		RoleMatch: s.roleMatch,
	}, nil
}

type fakeSuggester struct {
	calls    int32
	err      error
	degraded bool
	block    chan struct{}
}

func (f *fakeSuggester) Suggest(ctx context.Context, structured *types.StructuredResume, analysis *types.AnalysisResult) ([]types.Improvement, bool, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, false, f.err
	}
	return []types.Improvement{
		{Section: types.SectionExperience, Category: types.ImprovementRewrite, Suggestion: "补充量化结果", Rank: 1},
	}, f.degraded, nil
}

type testEnv struct {
	coordinator *Coordinator
	store       *fakeStore
	blobs       *fakeBlobs
	cache       *fakeCache
	publisher   *fakePublisher
	extractor   *fakeExtractor
	scorer      *fakeScorer
	suggester   *fakeSuggester
}

func newTestEnv(opts ...CoordinatorOption) *testEnv {
	env := &testEnv{
		store:     newFakeStore(),
		blobs:     newFakeBlobs(),
		cache:     newFakeCache(),
		publisher: &fakePublisher{},
		extractor: &fakeExtractor{},
		scorer:    &fakeScorer{score: 80},
		suggester: &fakeSuggester{},
	}
	base := []CoordinatorOption{
		WithProviderTimeout(500 * time.Millisecond),
		WithRetryBackoff(10 * time.Millisecond),
	}
	env.coordinator = NewCoordinator(
		&fakeNormalizer{}, env.extractor, env.scorer, env.suggester,
		env.store, env.blobs, env.cache, env.publisher,
		append(base, opts...)...,
	)
	return env
}

func (env *testEnv) upload(t *testing.T) *types.Resume {
	t.Helper()
	resume, err := env.coordinator.Upload(context.Background(), "owner-1", types.FileTypePDF, []byte("简历文本内容"))
	require.NoError(t, err)
	return resume
}

//
// Upload
//

func TestUpload_UnsupportedFormat(t *testing.T) {
	env := newTestEnv()
	_, err := env.coordinator.Upload(context.Background(), "o", types.FileType("xls"), []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestUpload_CreatesPendingResume(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)

	assert.NotEmpty(t, resume.ResumeID)
	assert.NotEmpty(t, resume.ContentHash)
	assert.Equal(t, constants.StatusPending, env.store.status(resume.ResumeID))
	// 原始字节已进对象存储
	data, err := env.blobs.GetRaw(context.Background(), resume.RawPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("简历文本内容"), data)
}

//
// Extract
//

func TestExtract_ComputedThenCached(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)

	structured, status, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusComputed, status)
	require.NotNil(t, structured)
	assert.Equal(t, constants.StatusExtracted, env.store.status(resume.ResumeID))

	// 再次提取直接复用，提供方只被调用一次
	_, status2, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCached, status2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.extractor.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.publisher.extracted))
}

func TestExtract_ContentHashCacheAcrossResumes(t *testing.T) {
	env := newTestEnv()
	// 相同内容上传两次，第二份复用提取缓存
	r1 := env.upload(t)
	r2 := env.upload(t)
	require.NotEqual(t, r1.ResumeID, r2.ResumeID)

	_, status1, err := env.coordinator.Extract(context.Background(), r1.ResumeID, false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusComputed, status1)

	_, status2, err := env.coordinator.Extract(context.Background(), r2.ResumeID, false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCached, status2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.extractor.calls))
}

func TestExtract_TransportErrorRetriedOnce(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)
	env.extractor.errs = []error{NewExtractionUnavailableError(resume.ResumeID, "connection reset")}

	structured, status, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusComputed, status)
	assert.NotNil(t, structured)
	// 首次失败 + 重试成功
	assert.Equal(t, int32(2), atomic.LoadInt32(&env.extractor.calls))
}

func TestExtract_TransportErrorTwiceFails(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)
	env.extractor.errs = []error{
		NewExtractionUnavailableError(resume.ResumeID, "reset"),
		NewExtractionUnavailableError(resume.ResumeID, "reset again"),
	}

	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionProviderUnavailable)
	assert.Equal(t, constants.StatusFailed, env.store.status(resume.ResumeID))
}

func TestExtract_NotFound(t *testing.T) {
	env := newTestEnv()
	_, _, err := env.coordinator.Extract(context.Background(), "missing", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResumeNotFound)
}

func TestExtract_ConcurrentCallsShareOneProviderCall(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)
	env.extractor.block = make(chan struct{})

	var wg sync.WaitGroup
	statuses := make([]types.ResultStatus, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, st, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
			require.NoError(t, err)
			statuses[i] = st
		}(i)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&env.extractor.calls) == 1
	}, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(env.extractor.block)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&env.extractor.calls))
	assert.Contains(t, statuses, types.StatusComputed)
}

func TestExtract_BusyWhileAnalyzing(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)
	require.NoError(t, env.store.UpdateStatus(context.Background(), resume.ResumeID, constants.StatusAnalyzing))

	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResumeBusy)
}

//
// Analyze
//

func TestAnalyze_RequiresExtraction(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)

	_, err := env.coordinator.Analyze(context.Background(), resume.ResumeID, "", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResumeNotExtracted)
}

func TestAnalyze_ComputedThenCached(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)
	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)

	result, err := env.coordinator.Analyze(context.Background(), resume.ResumeID, "need docker", false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusComputed, result.Status)
	assert.Equal(t, 80, result.ATSScore)
	assert.Equal(t, constants.StatusAnalyzed, env.store.status(resume.ResumeID))

	// 相同 (简历, JD) 第二次命中缓存
	result2, err := env.coordinator.Analyze(context.Background(), resume.ResumeID, "need docker", false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCached, result2.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.scorer.calls))
}

func TestAnalyze_DifferentJDRecomputes(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)
	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)

	_, err = env.coordinator.Analyze(context.Background(), resume.ResumeID, "jd one", false)
	require.NoError(t, err)
	_, err = env.coordinator.Analyze(context.Background(), resume.ResumeID, "jd two", false)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&env.scorer.calls))
}

func TestAnalyze_ForceRecompute(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)
	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)

	_, err = env.coordinator.Analyze(context.Background(), resume.ResumeID, "jd", false)
	require.NoError(t, err)
	result, err := env.coordinator.Analyze(context.Background(), resume.ResumeID, "jd", true)
	require.NoError(t, err)
	assert.Equal(t, types.StatusComputed, result.Status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&env.scorer.calls))
}

func TestAnalyze_ScoreClampedHigh(t *testing.T) {
	env := newTestEnv()
	env.scorer.score = 137
	resume := env.upload(t)
	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)

	result, err := env.coordinator.Analyze(context.Background(), resume.ResumeID, "", false)
	require.NoError(t, err)
	assert.Equal(t, 100, result.ATSScore)
}

func TestAnalyze_ScoreClampedLow(t *testing.T) {
	env := newTestEnv()
	env.scorer.score = -5
	resume := env.upload(t)
	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)

	result, err := env.coordinator.Analyze(context.Background(), resume.ResumeID, "", false)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ATSScore)
}

func TestAnalyze_ScorerFailureYieldsPartialAndFailedState(t *testing.T) {
	env := newTestEnv()
	env.scorer.err = errors.New("scoring backend down")
	resume := env.upload(t)
	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)

	result, err := env.coordinator.Analyze(context.Background(), resume.ResumeID, "jd", false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartial, result.Status)
	assert.NotEmpty(t, result.Warnings)
	assert.Equal(t, constants.StatusFailed, env.store.status(resume.ResumeID))

	// 返回的部分结果本身携带提取阶段产物
	require.NotNil(t, result.Structured)
	require.NotEmpty(t, result.Structured.Sections)
	assert.Contains(t, result.Structured.Sections[0].Content, "简历文本内容")

	// FAILED 状态保留最后完成阶段（提取）的产物
	r, _, err := env.store.GetResume(context.Background(), resume.ResumeID)
	require.NoError(t, err)
	assert.NotNil(t, r.Structured)
}

func TestAnalyze_ConcurrentSameJDOneProviderCall(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)
	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)

	env.scorer.block = make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, aerr := env.coordinator.Analyze(context.Background(), resume.ResumeID, "same jd", false)
			require.NoError(t, aerr)
		}()
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&env.scorer.calls) == 1
	}, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(env.scorer.block)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&env.scorer.calls))
}

func TestAnalyze_ProviderTimeoutDiscardsLateResult(t *testing.T) {
	env := newTestEnv(WithProviderTimeout(50 * time.Millisecond))
	resume := env.upload(t)
	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)

	// 评分方一直阻塞，两次调用（含重试）都超时
	env.scorer.block = make(chan struct{})
	defer close(env.scorer.block)

	result, err := env.coordinator.Analyze(context.Background(), resume.ResumeID, "jd", false)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartial, result.Status)
	assert.NotNil(t, result.Structured)
	assert.Equal(t, constants.StatusFailed, env.store.status(resume.ResumeID))
}

func TestAnalyze_BusyWhileImproving(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)
	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)
	require.NoError(t, env.store.UpdateStatus(context.Background(), resume.ResumeID, constants.StatusImproving))

	_, err = env.coordinator.Analyze(context.Background(), resume.ResumeID, "jd", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResumeBusy)
	assert.Equal(t, int32(0), atomic.LoadInt32(&env.scorer.calls))
}

//
// Improve
//

func TestImprove_HappyPath(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)
	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)
	_, err = env.coordinator.Analyze(context.Background(), resume.ResumeID, "jd", false)
	require.NoError(t, err)

	suggestions, status, err := env.coordinator.Improve(context.Background(), resume.ResumeID, "jd")
	require.NoError(t, err)
	assert.Equal(t, types.StatusComputed, status)
	require.Len(t, suggestions, 1)
	assert.Equal(t, constants.StatusDone, env.store.status(resume.ResumeID))
	assert.Len(t, env.store.improved[resume.ResumeID], 1)
}

func TestImprove_DegradedMarkedPartial(t *testing.T) {
	env := newTestEnv()
	env.suggester.degraded = true
	resume := env.upload(t)
	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)

	_, status, err := env.coordinator.Improve(context.Background(), resume.ResumeID, "")
	require.NoError(t, err)
	assert.Equal(t, types.StatusPartial, status)
}

func TestImprove_DifferentJDSeparateJobs(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)
	_, _, err := env.coordinator.Extract(context.Background(), resume.ResumeID, false)
	require.NoError(t, err)

	// 不同JD的并发改进请求各自成一个作业，互不串用结果
	env.suggester.block = make(chan struct{})
	var wg sync.WaitGroup
	for _, jd := range []string{"jd one", "jd two"} {
		wg.Add(1)
		go func(jd string) {
			defer wg.Done()
			_, _, ierr := env.coordinator.Improve(context.Background(), resume.ResumeID, jd)
			require.NoError(t, ierr)
		}(jd)
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&env.suggester.calls) == 2
	}, time.Second, time.Millisecond)
	close(env.suggester.block)
	wg.Wait()

	assert.Equal(t, int32(2), atomic.LoadInt32(&env.suggester.calls))
}

func TestImprove_RequiresExtraction(t *testing.T) {
	env := newTestEnv()
	resume := env.upload(t)
	_, _, err := env.coordinator.Improve(context.Background(), resume.ResumeID, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResumeNotExtracted)
}

//
// 缓存键
//

func TestAnalysisCacheKey_EmptyJDStable(t *testing.T) {
	k1 := AnalysisCacheKey("hash", hashString(""))
	k2 := AnalysisCacheKey("hash", hashString(""))
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, AnalysisCacheKey("hash", hashString("jd")))
}
