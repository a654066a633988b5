// Package charset maps MySQL collation ids to charset names and decodes
// column data sent in non-UTF-8 server charsets.
// https://dev.mysql.com/doc/refman/8.0/en/charset-charsets.html
package charset

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

const (
	Big5ChineseCI      = 1
	Latin2CzechCS      = 2
	Dec8SwedishCI      = 3
	Cp850GeneralCI     = 4
	Latin1German1CI    = 5
	Koi8rGeneralCI     = 7
	Latin1SwedishCI    = 8
	Latin2GeneralCI    = 9
	AsciiGeneralCI     = 11
	UjisJapaneseCI     = 12
	SjisJapaneseCI     = 13
	HebrewGeneralCI    = 16
	Tis620ThaiCI       = 18
	EuckrKoreanCI      = 19
	Koi8uGeneralCI     = 22
	Gb2312ChineseCI    = 24
	GreekGeneralCI     = 25
	Cp1250GeneralCI    = 26
	GbkChineseCI       = 28
	Latin5TurkishCI    = 30
	Utf8GeneralCI      = 33
	Binary             = 63
	Utf8mb4GeneralCI   = 45
	Utf8mb4Bin         = 46
	Cp1251GeneralCI    = 51
	Cp1256GeneralCI    = 57
	Cp866GeneralCI     = 58
	Cp852GeneralCI     = 62
	Utf8mb4UnicodeCI   = 224
	Utf8mb4Unicode520  = 246
	Utf8mb4VietnamCI   = 247
	Utf8mb40900AiCi    = 255
	Utf8mb40900Bin     = 309
)

// Default is what new connections request (utf8mb4, the 8.0 default).
const Default = Utf8mb40900AiCi

var collationNames = map[uint16]string{
	Big5ChineseCI:     "big5_chinese_ci",
	Latin2CzechCS:     "latin2_czech_cs",
	Dec8SwedishCI:     "dec8_swedish_ci",
	Cp850GeneralCI:    "cp850_general_ci",
	Latin1German1CI:   "latin1_german1_ci",
	Koi8rGeneralCI:    "koi8r_general_ci",
	Latin1SwedishCI:   "latin1_swedish_ci",
	Latin2GeneralCI:   "latin2_general_ci",
	AsciiGeneralCI:    "ascii_general_ci",
	UjisJapaneseCI:    "ujis_japanese_ci",
	SjisJapaneseCI:    "sjis_japanese_ci",
	HebrewGeneralCI:   "hebrew_general_ci",
	Tis620ThaiCI:      "tis620_thai_ci",
	EuckrKoreanCI:     "euckr_korean_ci",
	Koi8uGeneralCI:    "koi8u_general_ci",
	Gb2312ChineseCI:   "gb2312_chinese_ci",
	GreekGeneralCI:    "greek_general_ci",
	Cp1250GeneralCI:   "cp1250_general_ci",
	GbkChineseCI:      "gbk_chinese_ci",
	Latin5TurkishCI:   "latin5_turkish_ci",
	Utf8GeneralCI:     "utf8_general_ci",
	Binary:            "binary",
	Utf8mb4GeneralCI:  "utf8mb4_general_ci",
	Utf8mb4Bin:        "utf8mb4_bin",
	Cp1251GeneralCI:   "cp1251_general_ci",
	Cp1256GeneralCI:   "cp1256_general_ci",
	Cp866GeneralCI:    "cp866_general_ci",
	Cp852GeneralCI:    "cp852_general_ci",
	Utf8mb4UnicodeCI:  "utf8mb4_unicode_ci",
	Utf8mb4Unicode520: "utf8mb4_unicode_520_ci",
	Utf8mb4VietnamCI:  "utf8mb4_vietnamese_ci",
	Utf8mb40900AiCi:   "utf8mb4_0900_ai_ci",
	Utf8mb40900Bin:    "utf8mb4_0900_bin",
}

var collationIDs = map[string]uint16{}

func init() {
	for id, name := range collationNames {
		collationIDs[name] = id
	}
	collationIDs["utf8"] = Utf8GeneralCI
	collationIDs["utf8mb4"] = Utf8mb4GeneralCI
	collationIDs["latin1"] = Latin1SwedishCI
	collationIDs["gbk"] = GbkChineseCI
	collationIDs["big5"] = Big5ChineseCI
	collationIDs["sjis"] = SjisJapaneseCI
	collationIDs["euckr"] = EuckrKoreanCI
	collationIDs["ascii"] = AsciiGeneralCI
}

// Name returns the collation name for an id, or "unknown".
func Name(id uint16) string {
	if name, ok := collationNames[id]; ok {
		return name
	}
	return "unknown"
}

// ID returns the collation id for a collation or charset name. Unknown
// names fall back to the default collation.
func ID(name string) uint16 {
	if id, ok := collationIDs[name]; ok {
		return id
	}
	return Default
}

// IsBinary reports whether the collation carries raw bytes.
func IsBinary(id uint16) bool {
	return id == Binary
}

// decoders keys by the charset part of the collation name. UTF-8 and
// binary collations need no decoder.
var decoders = map[string]encoding.Encoding{
	"latin1": charmap.Windows1252,
	"latin2": charmap.ISO8859_2,
	"latin5": charmap.ISO8859_9,
	"ascii":  nil,
	"greek":  charmap.ISO8859_7,
	"hebrew": charmap.ISO8859_8,
	"cp1250": charmap.Windows1250,
	"cp1251": charmap.Windows1251,
	"cp1256": charmap.Windows1256,
	"cp850":  charmap.CodePage850,
	"cp852":  charmap.CodePage852,
	"cp866":  charmap.CodePage866,
	"koi8r":  charmap.KOI8R,
	"koi8u":  charmap.KOI8U,
	"gbk":    simplifiedchinese.GBK,
	"gb2312": simplifiedchinese.HZGB2312,
	"big5":   traditionalchinese.Big5,
	"sjis":   japanese.ShiftJIS,
	"ujis":   japanese.EUCJP,
	"euckr":  korean.EUCKR,
}

// Decode converts column bytes from the collation's charset to UTF-8.
// UTF-8, binary and unknown collations pass through unchanged.
func Decode(id uint16, data []byte) ([]byte, error) {
	name := Name(id)
	if id == Binary || strings.HasPrefix(name, "utf8") {
		return data, nil
	}

	cs, _, _ := strings.Cut(name, "_")
	enc, ok := decoders[cs]
	if !ok || enc == nil {
		return data, nil
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", cs, err)
	}
	return out, nil
}
