package signal

import (
	"regexp"
	"strings"
)

const (
	sideRe   = `(?P<side>buy|sell|long|short)\b`
	symbolRe = `(?P<symbol>[$#]?[a-z0-9][a-z0-9/]*)`
	// Digit groups may be split by single spaces ("45 000").
	numRe = `[0-9][0-9,.'_]*(?: [0-9][0-9,.'_]*)*`

	// optionalLine is the only kind of line allowed after the levels.
	optionalLine  = `(?:confluences?\s*[:=]\s*\d+|confidence\s*[:=]\s*[0-9]+(?:\.[0-9]+)?\s*%?)`
	optionalLines = `(?:[ \t]*\n\s*` + optionalLine + `)*\s*`

	entryLabel = `(?:entry price|entry)`
	tpLabel    = `(?:take profit|target|tp)`
	slLabel    = `(?:stop loss|stoploss|sl)`
)

// fields holds the raw captures of a matching template.
type fields struct {
	symbol, side, entry, tp, sl string
}

type template struct {
	name  string
	match func(msg string) (fields, bool)
}

// regexTemplate matches a single expression, anchored to the whole
// message, carrying all five named groups.
func regexTemplate(name, expr string) template {
	re := regexp.MustCompile(`(?i)^` + expr + optionalLines + `$`)
	return template{
		name: name,
		match: func(msg string) (fields, bool) {
			m := re.FindStringSubmatch(msg)
			if m == nil {
				return fields{}, false
			}
			get := func(g string) string { return m[re.SubexpIndex(g)] }
			return fields{
				symbol: get("symbol"),
				side:   get("side"),
				entry:  get("entry"),
				tp:     get("tp"),
				sl:     get("sl"),
			}, true
		},
	}
}

// labelTemplate takes a "Side SYMBOL" first line followed by exactly one
// entry, take-profit and stop-loss line in any order. Any other line, or a
// repeated label, fails the match.
func labelTemplate(name string) template {
	header := regexp.MustCompile(`(?i)^` + sideRe + `\s+` + symbolRe + `$`)
	labels := []struct {
		re  *regexp.Regexp
		dst func(*fields) *string
	}{
		{regexp.MustCompile(`(?i)^` + entryLabel + `\s*:\s*(` + numRe + `)$`), func(f *fields) *string { return &f.entry }},
		{regexp.MustCompile(`(?i)^` + tpLabel + `\s*:\s*(` + numRe + `)$`), func(f *fields) *string { return &f.tp }},
		{regexp.MustCompile(`(?i)^` + slLabel + `\s*:\s*(` + numRe + `)$`), func(f *fields) *string { return &f.sl }},
	}
	optional := regexp.MustCompile(`(?i)^` + optionalLine + `$`)

	return template{
		name: name,
		match: func(msg string) (fields, bool) {
			var lines []string
			for _, l := range strings.Split(msg, "\n") {
				if l = strings.TrimSpace(l); l != "" {
					lines = append(lines, l)
				}
			}
			if len(lines) < 4 {
				return fields{}, false
			}
			h := header.FindStringSubmatch(lines[0])
			if h == nil {
				return fields{}, false
			}
			f := fields{
				side:   h[header.SubexpIndex("side")],
				symbol: h[header.SubexpIndex("symbol")],
			}

		next:
			for _, l := range lines[1:] {
				for _, lb := range labels {
					m := lb.re.FindStringSubmatch(l)
					if m == nil {
						continue
					}
					dst := lb.dst(&f)
					if *dst != "" {
						return fields{}, false
					}
					*dst = m[1]
					continue next
				}
				if !optional.MatchString(l) {
					return fields{}, false
				}
			}
			if f.entry == "" || f.tp == "" || f.sl == "" {
				return fields{}, false
			}
			return f, true
		},
	}
}

// defaultTemplates is the ordered list tried by Parse. The first template
// that matches the whole message wins.
func defaultTemplates() []template {
	sep := `\s*[,;|]?\s*`
	return []template{
		// BTCUSDT Long\nEntry: x\nTP: y\nSL: z, also on one line
		regexTemplate("symbol-side", `(?P<symbol>[$#]?[a-z0-9]+usdt?)\s+`+sideRe+`\s*[,;|:]?\s*`+
			entryLabel+`\s*:\s*(?P<entry>`+numRe+`)`+sep+
			tpLabel+`\s*:\s*(?P<tp>`+numRe+`)`+sep+
			slLabel+`\s*:\s*(?P<sl>`+numRe+`)`),

		// Buy BTCUSDT\nEntry: x\nTP: y\nSL: z
		regexTemplate("side-symbol", sideRe+`\s+`+symbolRe+`[ \t]*\n\s*`+
			`entry\s*:\s*(?P<entry>`+numRe+`)[ \t]*\n\s*`+
			`(?:tp|target)\s*:\s*(?P<tp>`+numRe+`)[ \t]*\n\s*`+
			`(?:sl|stop loss)\s*:\s*(?P<sl>`+numRe+`)`),

		// Long $SOL @ 145.2 | TP: 160 | SL: 139.5
		regexTemplate("compact", sideRe+`\s+`+symbolRe+`\s*@\s*(?P<entry>`+numRe+`)\s*\|\s*`+
			`(?:tp|target)\s*:\s*(?P<tp>`+numRe+`)\s*\|\s*`+
			`(?:sl|stop loss)\s*:\s*(?P<sl>`+numRe+`)`),

		labelTemplate("labels"),
	}
}

var (
	confluenceRe = regexp.MustCompile(`(?im)^\s*confluences?\s*[:=]\s*(\d+)`)
	confidenceRe = regexp.MustCompile(`(?im)^\s*confidence\s*[:=]\s*([0-9]+(?:\.[0-9]+)?)\s*(%?)`)
)
