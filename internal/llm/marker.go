package llm

import "strings"

// markerPendingMax bounds how much text the assembler will hold while waiting
// for a closing bracket. Model output can legitimately contain a lone "[", and
// holding the stream hostage for it would stall both downstream channels.
const markerPendingMax = 48

// markerAssembler reassembles the single bracketed tier marker when the
// upstream tokenizer splits it across deltas ("[頂" in one delta, "級]" in the
// next). Downstream consumers then always see a marker as one whole fragment:
// the text channel forwards it verbatim for the tier board, the speech
// chunker strips it by pattern.
//
// Two states: idle (forward deltas as-is) and accumulating (an unclosed "["
// was seen; buffer until "]" arrives or the bound is hit).
type markerAssembler struct {
	pending string
}

// Consume feeds one delta and returns the fragments ready for delivery.
func (a *markerAssembler) Consume(delta string) []string {
	if delta == "" {
		return nil
	}

	if a.pending != "" {
		a.pending += delta
		if !strings.Contains(delta, "]") {
			if len(a.pending) > markerPendingMax {
				out := a.pending
				a.pending = ""
				return []string{out}
			}
			return nil
		}
		out := a.pending
		a.pending = ""
		return []string{out}
	}

	open := strings.LastIndex(delta, "[")
	if open >= 0 && !strings.Contains(delta[open:], "]") {
		a.pending = delta
		return nil
	}
	return []string{delta}
}

// Flush returns any buffered remainder at end of stream.
func (a *markerAssembler) Flush() []string {
	if a.pending == "" {
		return nil
	}
	out := a.pending
	a.pending = ""
	return []string{out}
}
