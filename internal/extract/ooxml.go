package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	contentTypesPath    = "[Content_Types].xml"
	docxDefaultBodyPath = "word/document.xml"
	docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
	pptxSlidePrefix     = "ppt/slides/slide"
)

var (
	// w:t and a:t runs, with or without attributes such as xml:space="preserve".
	wordRun  = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	slideRun = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

	// The main part override may list PartName and ContentType in either order.
	mainPartA = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)
	mainPartB = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)

	slideNumber = regexp.MustCompile(`slide(\d+)\.xml$`)
)

// unpackDOCX reads every w:t run of the main document part. The part path comes from
// [Content_Types].xml, falling back to word/document.xml.
func unpackDOCX(content []byte) (string, error) {
	_, parts, err := zipEntries(content, func(name string) bool {
		return name == contentTypesPath || strings.HasPrefix(name, "word/")
	})
	if err != nil {
		return "", err
	}
	bodyPath := docxDefaultBodyPath
	if ct, ok := parts[contentTypesPath]; ok {
		for _, re := range []*regexp.Regexp{mainPartA, mainPartB} {
			if m := re.FindSubmatch(ct); len(m) > 1 {
				bodyPath = strings.TrimPrefix(string(m[1]), "/")
				break
			}
		}
	}
	body, ok := parts[bodyPath]
	if !ok {
		return "", fmt.Errorf("%s not found", bodyPath)
	}
	return joinElementText(body, wordRun), nil
}

// unpackPPTX reads the a:t runs of every slide in slide-number order.
func unpackPPTX(content []byte) (string, error) {
	names, parts, err := zipEntries(content, func(name string) bool {
		return strings.HasPrefix(name, pptxSlidePrefix) && strings.HasSuffix(name, ".xml")
	})
	if err != nil {
		return "", err
	}
	sort.SliceStable(names, func(i, j int) bool { return slideIndex(names[i]) < slideIndex(names[j]) })
	var texts []string
	for _, name := range names {
		if t := joinElementText(parts[name], slideRun); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n"), nil
}

func slideIndex(name string) int {
	m := slideNumber.FindStringSubmatch(name)
	if len(m) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
