package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"

	"github.com/mammoai/mammoannotator/internal/core/domain"
)

// descriptionSummaryLimit caps the plain-text summary derived from the
// instruction HTML when the template carries no description of its own.
const descriptionSummaryLimit = 200

// ProjectTemplate is the YAML description of the annotation project:
// title, labels (brush label values and colors), the path to the expert
// instruction HTML and the task-UI toggles forwarded to the annotation
// tool on project creation.
type ProjectTemplate struct {
	Title                 string         `yaml:"title"`
	Description           string         `yaml:"description"`
	InstructionHTML       string         `yaml:"instruction_html"`
	Labels                []ProjectLabel `yaml:"labels"`
	ShowInstruction       bool           `yaml:"show_instruction"`
	ShowSkipButton        bool           `yaml:"show_skip_button"`
	EnableEmptyAnnotation bool           `yaml:"enable_empty_annotation"`
	MaximumAnnotations    int            `yaml:"maximum_annotations"`
}

type ProjectLabel struct {
	Value      string `yaml:"value"`
	Background string `yaml:"background"`
}

// LoadProjectTemplate reads the YAML project template and assembles the
// project creation payload: the brush labeling config XML is built from
// the label list, and the instruction HTML (resolved relative to the
// template file) is validated and summarized for the description
// fallback.
func LoadProjectTemplate(path string) (domain.ProjectSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ProjectSpec{}, fmt.Errorf("read project template: %w", err)
	}

	var tpl ProjectTemplate
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return domain.ProjectSpec{}, fmt.Errorf("parse project template: %w", err)
	}
	if strings.TrimSpace(tpl.Title) == "" {
		return domain.ProjectSpec{}, errors.New("project template: title is required")
	}
	if len(tpl.Labels) == 0 {
		return domain.ProjectSpec{}, errors.New("project template: at least one label is required")
	}
	for i, label := range tpl.Labels {
		if strings.TrimSpace(label.Value) == "" {
			return domain.ProjectSpec{}, fmt.Errorf("project template: label %d has no value", i)
		}
	}

	labelConfig, err := buildLabelConfig(tpl.Labels)
	if err != nil {
		return domain.ProjectSpec{}, fmt.Errorf("build label config: %w", err)
	}

	spec := domain.ProjectSpec{
		Title:                 tpl.Title,
		Description:           tpl.Description,
		LabelConfig:           labelConfig,
		ShowInstruction:       tpl.ShowInstruction,
		ShowSkipButton:        tpl.ShowSkipButton,
		EnableEmptyAnnotation: tpl.EnableEmptyAnnotation,
		MaximumAnnotations:    tpl.MaximumAnnotations,
	}

	if tpl.InstructionHTML != "" {
		instructionPath := tpl.InstructionHTML
		if !filepath.IsAbs(instructionPath) {
			instructionPath = filepath.Join(filepath.Dir(path), instructionPath)
		}
		markup, summary, err := loadInstruction(instructionPath)
		if err != nil {
			return domain.ProjectSpec{}, err
		}
		spec.ExpertInstruction = markup
		if spec.Description == "" {
			spec.Description = summary
		}
	}
	return spec, nil
}

// labelConfigView is the annotation tool's labeling interface: one image
// bound to a brush label set. The $image variable is filled from each
// task's image field.
type labelConfigView struct {
	XMLName xml.Name         `xml:"View"`
	Image   labelConfigImage `xml:"Image"`
	Brush   labelConfigBrush `xml:"BrushLabels"`
}

type labelConfigImage struct {
	Name        string `xml:"name,attr"`
	Value       string `xml:"value,attr"`
	Zoom        bool   `xml:"zoom,attr"`
	ZoomControl bool   `xml:"zoomControl,attr"`
}

type labelConfigBrush struct {
	Name   string             `xml:"name,attr"`
	ToName string             `xml:"toName,attr"`
	Labels []labelConfigLabel `xml:"Label"`
}

type labelConfigLabel struct {
	Value      string `xml:"value,attr"`
	Background string `xml:"background,attr,omitempty"`
}

func buildLabelConfig(labels []ProjectLabel) (string, error) {
	view := labelConfigView{
		Image: labelConfigImage{
			Name:        "image",
			Value:       "$image",
			Zoom:        true,
			ZoomControl: true,
		},
		Brush: labelConfigBrush{
			Name:   "tag",
			ToName: "image",
		},
	}
	for _, label := range labels {
		view.Brush.Labels = append(view.Brush.Labels, labelConfigLabel{
			Value:      label.Value,
			Background: label.Background,
		})
	}

	out, err := xml.MarshalIndent(view, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// loadInstruction reads the expert instruction file and checks that it is
// renderable markup with visible text. The collapsed text doubles as the
// project description when the template leaves it empty.
func loadInstruction(path string) (markup, summary string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read instruction html: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return "", "", fmt.Errorf("parse instruction html: %w", err)
	}

	text := collapseWhitespace(visibleText(doc))
	if text == "" {
		return "", "", fmt.Errorf("instruction html %s has no visible text", filepath.Base(path))
	}
	if len(text) > descriptionSummaryLimit {
		text = strings.TrimSpace(text[:descriptionSummaryLimit])
	}
	return string(data), text, nil
}

// visibleText walks the node tree collecting text content, skipping
// script and style subtrees.
func visibleText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return ""
	}
	var sb strings.Builder
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		sb.WriteString(visibleText(child))
		sb.WriteString(" ")
	}
	return sb.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
