package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/xuri/excelize/v2"
)

// zipOf builds an in-memory archive from name/content pairs, preserving order.
func zipOf(t *testing.T, files ...string) []byte {
	t.Helper()
	if len(files)%2 != 0 {
		t.Fatal("zipOf needs name/content pairs")
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for i := 0; i < len(files); i += 2 {
		fw, err := w.Create(files[i])
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(files[i+1])); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func wordBody(text string) string {
	return `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p w:rsidR="00A1"><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p></w:body></w:document>`
}

func slideBody(text string) string {
	return `<p:sld><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>` + text + `</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
}

func TestOfficeAdapter_unpack(t *testing.T) {
	tests := []struct {
		name    string
		mime    string
		content func(t *testing.T) []byte
		want    string
	}{
		{
			name: "docx default body",
			mime: MimeDOCX,
			content: func(t *testing.T) []byte {
				return zipOf(t, "word/document.xml", wordBody("Interchange fees explained"))
			},
			want: "Interchange fees explained",
		},
		{
			name: "docx body from content types",
			mime: MimeDOCX,
			content: func(t *testing.T) []byte {
				return zipOf(t,
					"[Content_Types].xml", `<Types><Override PartName="/word/document2.xml" ContentType="`+docxMainContentType+`"/></Types>`,
					"word/document2.xml", wordBody("Chargeback handling"),
				)
			},
			want: "Chargeback handling",
		},
		{
			name: "docx content type before part name",
			mime: MimeDOCX,
			content: func(t *testing.T) []byte {
				return zipOf(t,
					"[Content_Types].xml", `<Types><Override ContentType="`+docxMainContentType+`" PartName="/word/document3.xml"/></Types>`,
					"word/document3.xml", wordBody("Reversed attributes"),
				)
			},
			want: "Reversed attributes",
		},
		{
			name: "pptx slides in numeric order",
			mime: MimePPTX,
			content: func(t *testing.T) []byte {
				return zipOf(t,
					"ppt/slides/slide10.xml", slideBody("Tenth"),
					"ppt/slides/slide2.xml", slideBody("Second"),
					"ppt/slides/slide1.xml", slideBody("First"),
				)
			},
			want: "First\nSecond\nTenth",
		},
		{
			name: "odp headings and paragraphs",
			mime: MimeODP,
			content: func(t *testing.T) []byte {
				return zipOf(t, "content.xml", `<office:document><draw:page><text:h>Pricing</text:h><text:p>Flat rate</text:p></draw:page></office:document>`)
			},
			want: "Flat rate Pricing",
		},
		{
			name: "ods cells",
			mime: MimeODS,
			content: func(t *testing.T) []byte {
				return zipOf(t, "content.xml", `<table:table-row><table:table-cell><text:p>Cell A</text:p></table:table-cell><table:table-cell><text:span>Cell B</text:span></table:table-cell></table:table-row>`)
			},
			want: "Cell A Cell B",
		},
		{
			name: "xlsx rows",
			mime: MimeXLSX,
			content: func(t *testing.T) []byte {
				f := excelize.NewFile()
				defer f.Close()
				_ = f.SetCellValue("Sheet1", "A1", "Tier")
				_ = f.SetCellValue("Sheet1", "A2", "Gold")
				_ = f.SetCellValue("Sheet1", "B2", "2.9%")
				var buf bytes.Buffer
				if _, err := f.WriteTo(&buf); err != nil {
					t.Fatal(err)
				}
				return buf.Bytes()
			},
			want: "Tier\nGold\t2.9%",
		},
	}

	o := NewOfficeAdapter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !o.Supports(tt.mime) {
				t.Fatalf("Supports(%s) = false", tt.mime)
			}
			att := o.Attempt(context.Background(), tt.content(t), tt.mime)
			if att.Err != nil {
				t.Fatalf("Attempt: %v", att.Err)
			}
			if att.Text != tt.want {
				t.Errorf("text = %q, want %q", att.Text, tt.want)
			}
			if att.Confidence != 1 {
				t.Errorf("confidence = %v, want 1", att.Confidence)
			}
		})
	}
}

func TestOfficeAdapter_structuralFailure(t *testing.T) {
	tests := []struct {
		name    string
		mime    string
		content []byte
	}{
		{"pptx not a zip", MimePPTX, []byte("not a zip file")},
		{"docx missing body", MimeDOCX, nil},
		{"odp missing content", MimeODP, nil},
		{"xlsx garbage", MimeXLSX, []byte("garbage")},
	}
	o := NewOfficeAdapter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := tt.content
			if content == nil {
				content = zipOf(t, "other.xml", "<x/>")
			}
			att := Run(context.Background(), o, content, tt.mime, 0)
			if att.Err == nil {
				t.Fatal("expected error")
			}
			if att.Confidence != 0 || att.Text != "" {
				t.Errorf("failed attempt should be empty with zero confidence, got %q %v", att.Text, att.Confidence)
			}
		})
	}
}

func TestOfficeAdapter_supports(t *testing.T) {
	o := NewOfficeAdapter()
	if o.Supports("text/plain") || o.Supports(mimePDF) {
		t.Error("office adapter should not claim plain text or PDF")
	}
	if !o.Supports(MimeRTF) || !o.Supports(MimeODT) {
		t.Error("office adapter should claim RTF and ODT")
	}
}
