package services

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/gaochaoqwe/wordllm/internal/errors"
	"github.com/gaochaoqwe/wordllm/internal/models"
	"github.com/gaochaoqwe/wordllm/internal/storage"
	"github.com/gaochaoqwe/wordllm/internal/utils"
)

func numbers(chapters []*models.Chapter) []string {
	out := make([]string, 0, len(chapters))
	for _, ch := range models.Flatten(chapters) {
		out = append(out, ch.ChapterNumber)
	}
	return out
}

func nestedTree() []*models.Chapter {
	return []*models.Chapter{
		{ChapterNumber: "1", Title: "概述", Children: []*models.Chapter{
			{ChapterNumber: "1.1", Title: "背景"},
			{ChapterNumber: "1.2", Title: "目标"},
		}},
		{ChapterNumber: "2", Title: "方案"},
	}
}

func TestInitialize(t *testing.T) {
	s := NewOutlineState()

	_, err := s.Initialize("  ", "7", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeMissingProjectID))

	ids, err := s.Initialize("42", "7", "")
	require.NoError(t, err)
	assert.Equal(t, Identifiers{ProjectID: "42", TemplateID: "7", InputFileName: "输入文件.docx"}, ids)

	// 重复调用直接覆盖
	ids, err = s.Initialize("43", "", "需求.docx")
	require.NoError(t, err)
	assert.Equal(t, "43", ids.ProjectID)
	assert.Empty(t, ids.TemplateID)
	assert.Equal(t, "需求.docx", ids.InputFileName)
}

func TestDefaultsAndAddChapter(t *testing.T) {
	s := NewOutlineState()
	s.LoadDefaultChapters()
	require.Equal(t, 5, s.ChapterCount())

	ch := s.AddChapter()
	assert.Equal(t, "6", ch.ChapterNumber)
	assert.Equal(t, "新章节 6", ch.Title)
	assert.Equal(t, 6, s.ChapterCount())
}

func TestRemoveChapterIsLenient(t *testing.T) {
	s := NewOutlineState()
	s.SetChapters(nestedTree())

	s.RemoveChapterAt(-1)
	s.RemoveChapterAt(9)
	s.RemoveChapterByKey("9.9")
	assert.Equal(t, []string{"1", "1.1", "1.2", "2"}, numbers(s.Chapters()))

	s.RemoveChapterByKey("1.1")
	assert.Equal(t, []string{"1", "1.2", "2"}, numbers(s.Chapters()))

	s.RemoveChapterAt(1)
	assert.Equal(t, []string{"1", "1.2"}, numbers(s.Chapters()))
}

func TestRemovedChapterNumberStartsEmpty(t *testing.T) {
	s := NewOutlineState()
	s.LoadDefaultChapters()
	s.AddChapter()
	s.SetContent("6", "第六章旧正文")
	s.SetStatus("6", models.ChapterDone)
	require.NoError(t, s.SelectChapter("6"))

	s.RemoveChapterByKey("6")
	assert.Empty(t, s.CurrentChapter())

	ch := s.AddChapter()
	require.Equal(t, "6", ch.ChapterNumber)
	assert.False(t, s.HasContent("6"))
	assert.Equal(t, models.ChapterUnwritten, s.StatusOf("6"))

	// 子章节随父章节一起清掉
	s.SetChapters(nestedTree())
	s.SetContent("1.2", "目标正文")
	s.RemoveChapterAt(0)
	assert.False(t, s.HasContent("1.2"))

	// 重新加载占位章节不保留旧正文
	s.SetContent("1", "引言正文")
	s.LoadDefaultChapters()
	assert.False(t, s.HasContent("1"))
}

func TestAddRequirementIsIdempotent(t *testing.T) {
	s := NewOutlineState()
	s.SetChapters(nestedTree())

	s.AddRequirementByKey("1.2")
	ch := s.FindChapter("1.2")
	require.NotNil(t, ch.Requirement)
	assert.Equal(t, "", *ch.Requirement)

	require.NoError(t, s.SetRequirement("1.2", "补充数据来源"))
	s.AddRequirementByKey("1.2")
	s.AddRequirementAt(0)
	s.AddRequirementAt(5)

	assert.Equal(t, "补充数据来源", *s.FindChapter("1.2").Requirement)
	assert.NotNil(t, s.FindChapter("1").Requirement)
	assert.Nil(t, s.FindChapter("2").Requirement)

	err := s.SetRequirement("8", "x")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeChapterNotFound))
}

func TestReconcileSyncsCacheAndTree(t *testing.T) {
	s := NewOutlineState()
	tree := nestedTree()
	tree[1].Content = "方案正文"
	s.SetChapters(tree)
	s.SetContent("1.1", "背景正文")

	out := s.Reconcile()
	assert.Equal(t, "背景正文", models.FindByNumber(out, "1.1").Content)
	assert.Equal(t, "方案正文", models.FindByNumber(out, "2").Content)

	v, ok := s.ContentOf("2")
	assert.True(t, ok)
	assert.Equal(t, "方案正文", v)

	s.ApplySavedIDs([]int64{101, 102, 103})
	chapters := s.Chapters()
	assert.Equal(t, int64(101), *chapters[0].ID)
	assert.Equal(t, int64(102), *chapters[1].ID)
}

func TestSetChaptersRebuildsCache(t *testing.T) {
	s := NewOutlineState()
	s.SetChapters(nestedTree())
	s.SetContent("1.1", "旧正文")
	s.SetStatus("1.1", models.ChapterDone)
	require.NoError(t, s.SelectChapter("1.2"))

	s.SetChapters([]*models.Chapter{{ChapterNumber: "1", Title: "新概述", Children: []*models.Chapter{
		{ChapterNumber: "1.1", Title: "新背景"},
	}}})

	_, ok := s.ContentOf("1.1")
	assert.False(t, ok)
	assert.Equal(t, models.ChapterUnwritten, s.StatusOf("1.1"))
	assert.Empty(t, s.CurrentChapter())
	assert.Empty(t, models.FindByNumber(s.Reconcile(), "1.1").Content)
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewOutlineState()
	s.SetChapters(nestedTree())
	require.NoError(t, s.SelectChapter("1.1"))

	snap := s.Snapshot()
	snap.Chapters[0].Title = "改动"
	snap.DocumentContents["1.1"] = "改动"

	assert.Equal(t, "概述", s.FindChapter("1").Title)
	assert.False(t, s.HasContent("1.1"))
	assert.Equal(t, "1.1", snap.CurrentChapter)
}

func TestTemplateFallbackOrder(t *testing.T) {
	cases := []struct {
		name     string
		chapter  string
		session  string
		location string
		stored   string
		want     string
		source   TemplateSource
	}{
		{name: "chapter wins", chapter: "1", session: "2", location: "/projects/5?project_id=3", stored: "4", want: "1", source: SourceChapter},
		{name: "session", session: "2", location: "/projects/5?project_id=3", stored: "4", want: "2", source: SourceSession},
		{name: "query projectId first", location: "/projects/5?project_id=3&projectId=9", stored: "4", want: "9", source: SourceQuery},
		{name: "query project_id", location: "/projects/5?project_id=3", stored: "4", want: "3", source: SourceQuery},
		{name: "store", location: "/projects/5", stored: "4", want: "4", source: SourceStore},
		{name: "path", location: "/projects/5/edit", want: "5", source: SourcePath},
		{name: "missing", location: "/editor"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := NewOutlineState()
			_, err := state.Initialize("42", tc.session, "")
			require.NoError(t, err)
			loc, err := url.Parse(tc.location)
			require.NoError(t, err)
			state.SetLocation(loc)

			store := storage.NewMemoryStore()
			if tc.stored != "" {
				require.NoError(t, store.Set(storage.KeyTemplateID, tc.stored))
			}
			resolver := NewTemplateResolver(state, store, utils.NewNopLogger())

			var ch *models.Chapter
			if tc.chapter != "" {
				ch = &models.Chapter{ChapterNumber: "1", TemplateID: tc.chapter}
			}

			id, source := resolver.lookup(ch)
			assert.Equal(t, tc.want, id)
			assert.Equal(t, tc.source, source)

			got, err := resolver.Resolve(ch)
			if tc.want == "" {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeMissingTemplateID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			cached, ok, err := store.Get(storage.KeyTemplateID)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, tc.want, cached)
		})
	}
}

func TestResolveProjectFallsBackToChapters(t *testing.T) {
	state := NewOutlineState()
	store := storage.NewMemoryStore()
	resolver := NewTemplateResolver(state, store, nil)

	assert.Equal(t, "", resolver.ResolveProject(nil))
	assert.Equal(t, "77", resolver.ResolveProject([]*models.Chapter{{ChapterNumber: "1", ProjectID: "77"}}))

	// 写回后缓存可用
	assert.Equal(t, "77", resolver.ResolveProject(nil))
}

func TestResolveProjectOrder(t *testing.T) {
	cases := []struct {
		name     string
		chapter  string
		location string
		stored   string
		want     string
	}{
		{name: "chapter wins", chapter: "1", location: "/projects/5?projectId=2", stored: "4", want: "1"},
		{name: "query projectId first", location: "/projects/5?project_id=3&projectId=2", stored: "4", want: "2"},
		{name: "query project_id", location: "/projects/5?project_id=3", stored: "4", want: "3"},
		{name: "store before path", location: "/projects/5", stored: "4", want: "4"},
		{name: "path", location: "/projects/5/edit", want: "5"},
		{name: "missing", location: "/editor"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := NewOutlineState()
			loc, err := url.Parse(tc.location)
			require.NoError(t, err)
			state.SetLocation(loc)

			store := storage.NewMemoryStore()
			if tc.stored != "" {
				require.NoError(t, store.Set(storage.KeyCurrentProjectID, tc.stored))
			}
			resolver := NewTemplateResolver(state, store, utils.NewNopLogger())

			var chapters []*models.Chapter
			if tc.chapter != "" {
				chapters = []*models.Chapter{{ChapterNumber: "1", ProjectID: tc.chapter}}
			}
			assert.Equal(t, tc.want, resolver.ResolveProject(chapters))

			cached, ok, err := store.Get(storage.KeyCurrentProjectID)
			require.NoError(t, err)
			assert.Equal(t, tc.want != "", ok)
			assert.Equal(t, tc.want, cached)
		})
	}
}
