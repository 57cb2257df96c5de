package extract

import (
	"fmt"
	"regexp"
)

const odfContentPath = "content.xml"

// OpenDocument text elements, each matched against its own closing tag.
var (
	odfParagraph = regexp.MustCompile(`<text:p[^>]*>([^<]*)</text:p>`)
	odfSpan      = regexp.MustCompile(`<text:span[^>]*>([^<]*)</text:span>`)
	odfHeading   = regexp.MustCompile(`<text:h[^>]*>([^<]*)</text:h>`)
)

func unpackODP(content []byte) (string, error) {
	return unpackODF(content, odfParagraph, odfSpan, odfHeading)
}

func unpackODS(content []byte) (string, error) {
	return unpackODF(content, odfParagraph, odfSpan)
}

func unpackODF(content []byte, patterns ...*regexp.Regexp) (string, error) {
	_, parts, err := zipEntries(content, func(name string) bool { return name == odfContentPath })
	if err != nil {
		return "", err
	}
	body, ok := parts[odfContentPath]
	if !ok {
		return "", fmt.Errorf("%s not found", odfContentPath)
	}
	return joinElementText(body, patterns...), nil
}
