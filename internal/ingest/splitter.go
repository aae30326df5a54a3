package ingest

import (
	"strings"

	"github.com/ruined/expertmind/internal/retrieval"
)

// SplitPages turns extracted pages into overlapping passages sized for
// embedding. Passages never cross page boundaries so every retrieved chunk
// can cite its page.
func SplitPages(pages []Page, chunkSize, overlap int) []retrieval.Passage {
	var passages []retrieval.Passage
	for _, page := range pages {
		for seq, text := range splitText(page.Text, chunkSize, overlap) {
			passages = append(passages, retrieval.Passage{
				Page: page.Number,
				Seq:  seq,
				Text: text,
			})
		}
	}
	return passages
}

// splitText slices text into chunks of at most chunkSize runes with the given
// overlap between neighbors. Boundaries prefer the last whitespace inside the
// chunk so words stay intact.
func splitText(text string, chunkSize, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			// Back up to the nearest whitespace, but never past the overlap
			// window or a pathological chunk could make no progress.
			cut := end
			for cut > start+chunkSize-overlap && !isSpace(runes[cut-1]) {
				cut--
			}
			if cut > start+chunkSize-overlap {
				end = cut
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
