// prompt.go - Instructions for line extraction

package ai

// GetLineExtractionPrompt asks for raw lines only; structuring happens downstream
func GetLineExtractionPrompt() string {
	return `You are reading a scanned Russian supplier invoice (накладная / счёт-фактура).

Return every visible line of text, top to bottom, left to right, exactly as printed.
- One printed line per array element; table rows become one line with cells separated by " | ".
- Keep abbreviations, units, numbers and punctuation as printed ("в/с", "1,5 кг", "3,2%").
- Do not translate, correct spelling, guess missing characters or add commentary.
- Skip stamps and signatures that contain no readable text.`
}
