package lipsync

// Viseme codes understood by the animation rig.
const (
	VisemeSilence = "Vis_sil_M"
	VisemePP      = "Vis_PP_M"
	VisemeFF      = "Vis_FF_M"
	VisemeTH      = "Vis_TH_M"
	VisemeDD      = "Vis_DD_M"
	VisemeKK      = "Vis_kk_M"
	VisemeCH      = "Vis_CH_M"
	VisemeSS      = "Vis_SS_M"
	VisemeNN      = "Vis_nn_M"
	VisemeRR      = "Vis_RR_M"
	VisemeAA      = "Vis_aa_M"
	VisemeE       = "Vis_E_M"
	VisemeI       = "Vis_I_M"
	VisemeO       = "Vis_O_M"
	VisemeU       = "Vis_U_M"
)

// VisemeDescriptor is the viseme a phoneme maps to and the phoneme's nominal
// duration. The duration only weights the phoneme's share of a word.
type VisemeDescriptor struct {
	Viseme     string
	DurationMs int
}

// VisemeTable maps phoneme symbols to descriptors. The zero value is not
// usable; build tables with [NewVisemeTable].
type VisemeTable struct {
	entries map[string]VisemeDescriptor
	silence VisemeDescriptor
}

// NewVisemeTable copies entries into an immutable table. silence is returned
// for every symbol absent from entries.
func NewVisemeTable(entries map[string]VisemeDescriptor, silence VisemeDescriptor) VisemeTable {
	m := make(map[string]VisemeDescriptor, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return VisemeTable{entries: m, silence: silence}
}

// Lookup returns the descriptor for symbol and whether the symbol was mapped.
// Unmapped symbols get the silence descriptor.
func (t VisemeTable) Lookup(symbol string) (VisemeDescriptor, bool) {
	d, ok := t.entries[symbol]
	if !ok {
		return t.silence, false
	}
	return d, true
}

// Silence returns the catch-all descriptor.
func (t VisemeTable) Silence() VisemeDescriptor {
	return t.silence
}

// Len returns the number of mapped symbols.
func (t VisemeTable) Len() int {
	return len(t.entries)
}

var defaultTable = buildDefaultTable()

// DefaultVisemeTable returns the ARPAbet → viseme table. Every stress variant
// (0, 1, 2) of every vowel is mapped, as is every consonant and SIL.
func DefaultVisemeTable() VisemeTable {
	return defaultTable
}

func buildDefaultTable() VisemeTable {
	silence := VisemeDescriptor{Viseme: VisemeSilence, DurationMs: 80}

	vowels := map[string]VisemeDescriptor{
		"AA": {VisemeAA, 100},
		"AE": {VisemeAA, 100},
		"AH": {VisemeAA, 90},
		"AW": {VisemeAA, 100},
		"AY": {VisemeAA, 100},
		"AO": {VisemeO, 100},
		"OW": {VisemeO, 100},
		"OY": {VisemeO, 100},
		"EH": {VisemeE, 90},
		"EY": {VisemeE, 90},
		"IH": {VisemeI, 90},
		"IY": {VisemeI, 90},
		"UH": {VisemeU, 100},
		"UW": {VisemeU, 100},
		"ER": {VisemeRR, 80},
	}
	consonants := map[string]VisemeDescriptor{
		"P":  {VisemePP, 70},
		"B":  {VisemePP, 70},
		"M":  {VisemeNN, 70},
		"N":  {VisemeNN, 70},
		"NG": {VisemeNN, 70},
		"L":  {VisemeNN, 70},
		"F":  {VisemeFF, 70},
		"V":  {VisemeFF, 70},
		"TH": {VisemeTH, 70},
		"DH": {VisemeTH, 70},
		"T":  {VisemeDD, 70},
		"D":  {VisemeDD, 70},
		"K":  {VisemeKK, 70},
		"G":  {VisemeKK, 70},
		"HH": {VisemeKK, 60},
		"CH": {VisemeCH, 90},
		"JH": {VisemeCH, 90},
		"SH": {VisemeCH, 90},
		"ZH": {VisemeCH, 90},
		"S":  {VisemeSS, 60},
		"Z":  {VisemeSS, 60},
		"R":  {VisemeRR, 80},
		"W":  {VisemeU, 80},
		"Y":  {VisemeI, 70},
	}

	entries := make(map[string]VisemeDescriptor, len(vowels)*3+len(consonants)+1)
	for base, d := range vowels {
		for _, stress := range []string{"0", "1", "2"} {
			entries[base+stress] = d
		}
	}
	for sym, d := range consonants {
		entries[sym] = d
	}
	entries[SilencePhoneme] = silence
	return NewVisemeTable(entries, silence)
}
