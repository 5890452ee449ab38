package language

import "strings"

// Undetermined is the ISO 639-2 code for streams without a usable tag.
const Undetermined = "und"

type entry struct {
	code2   string   // ISO 639-1
	code3   string   // ISO 639-2/T
	alt3    string   // ISO 639-2/B when it differs, e.g. "fre"
	display string   // English name
	words   []string // English names servers sometimes send instead of a code
}

var languages = []entry{
	{"en", "eng", "", "English", []string{"english"}},
	{"es", "spa", "", "Spanish", []string{"spanish", "castilian"}},
	{"fr", "fra", "fre", "French", []string{"french"}},
	{"de", "deu", "ger", "German", []string{"german"}},
	{"it", "ita", "", "Italian", []string{"italian"}},
	{"pt", "por", "", "Portuguese", []string{"portuguese"}},
	{"ja", "jpn", "", "Japanese", []string{"japanese"}},
	{"ko", "kor", "", "Korean", []string{"korean"}},
	{"zh", "zho", "chi", "Chinese", []string{"chinese"}},
	{"ru", "rus", "", "Russian", []string{"russian"}},
	{"ar", "ara", "", "Arabic", []string{"arabic"}},
	{"hi", "hin", "", "Hindi", []string{"hindi"}},
	{"nl", "nld", "dut", "Dutch", []string{"dutch", "flemish"}},
	{"pl", "pol", "", "Polish", []string{"polish"}},
	{"sv", "swe", "", "Swedish", []string{"swedish"}},
	{"da", "dan", "", "Danish", []string{"danish"}},
	{"no", "nor", "", "Norwegian", []string{"norwegian"}},
	{"fi", "fin", "", "Finnish", []string{"finnish"}},
	{"cs", "ces", "cze", "Czech", []string{"czech"}},
	{"el", "ell", "gre", "Greek", []string{"greek"}},
	{"he", "heb", "", "Hebrew", []string{"hebrew"}},
	{"hu", "hun", "", "Hungarian", []string{"hungarian"}},
	{"tr", "tur", "", "Turkish", []string{"turkish"}},
}

var (
	byCode2 = map[string]*entry{}
	byCode3 = map[string]*entry{}
	byWord  = map[string]*entry{}
)

func init() {
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

// lookup accepts a bare code, a word, or a BCP 47 style tag such as "en-US"
// whose primary subtag is used.
func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if primary, _, found := strings.Cut(code, "-"); found && len(primary) <= 3 {
		code = primary
	}
	if code == "" {
		return nil
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	return byWord[code]
}

// ToISO3 converts a tag to ISO 639-2/T. Unknown three-letter codes pass
// through; anything else unrecognized is Undetermined.
func ToISO3(code string) string {
	if e := lookup(code); e != nil {
		return e.code3
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) == 3 && isLetters(code) {
		return code
	}
	return Undetermined
}

// DisplayName returns the English name for a recognized tag, or the
// upper-cased input.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if e := lookup(code); e != nil {
		return e.display
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// Set is a normalized language filter. The zero value matches everything.
type Set map[string]struct{}

// NewSet normalizes codes with ToISO3. Blank entries are ignored.
func NewSet(codes []string) Set {
	set := Set{}
	for _, code := range codes {
		if strings.TrimSpace(code) == "" {
			continue
		}
		set[ToISO3(code)] = struct{}{}
	}
	return set
}

// Allows reports whether code passes the filter.
func (s Set) Allows(code string) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[ToISO3(code)]
	return ok
}

func isLetters(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
