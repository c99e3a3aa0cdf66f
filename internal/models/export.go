// internal/models/export.go
package models

// 导出格式
const (
	FormatDocx = "docx"
	FormatPDF  = "pdf"
	FormatTxt  = "txt"
)

// 导出范围
const (
	ScopeAll     = "all"
	ScopeCurrent = "current"
)

// Margins 页边距（厘米）
type Margins struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// SectionNumberStyle 章节编号样式：none | chapter | number
type SectionNumberStyle struct {
	NumberStyle string `json:"number_style"`
}

// TextStyle 各级标题与正文样式
type TextStyle struct {
	FontFamily      string  `json:"fontFamily"`
	FontSize        string  `json:"fontSize"`
	Alignment       string  `json:"alignment"`
	Bold            bool    `json:"bold"`
	FirstLineIndent float64 `json:"firstLineIndent"`
	LineSpacing     float64 `json:"lineSpacing"`
}

// ExportSettings 每次导出重新构造的值对象
type ExportSettings struct {
	Format             string              `json:"format"`
	Scope              string              `json:"scope"`
	CurrentChapter     *int                `json:"currentChapter,omitempty"`
	Margins            *Margins            `json:"margins,omitempty"`
	SectionNumberStyle *SectionNumberStyle `json:"section_number_style,omitempty"`
	Level1Style        *TextStyle          `json:"level1_style,omitempty"`
	Level2Style        *TextStyle          `json:"level2_style,omitempty"`
	Level3Style        *TextStyle          `json:"level3_style,omitempty"`
	TextStyle          *TextStyle          `json:"text_style,omitempty"`
}

// DefaultExportSettings 默认导出设置
func DefaultExportSettings() ExportSettings {
	return ExportSettings{
		Format: FormatDocx,
		Scope:  ScopeAll,
		Margins: &Margins{
			Top:    2.54,
			Bottom: 2.54,
			Left:   3.18,
			Right:  3.18,
		},
		SectionNumberStyle: &SectionNumberStyle{NumberStyle: "chapter"},
	}
}

// ContentTypeFor 按格式返回二进制内容类型
func ContentTypeFor(format string) string {
	switch format {
	case FormatDocx:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatPDF:
		return "application/pdf"
	case FormatTxt:
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
