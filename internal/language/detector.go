// Package language detects the language of inbound guest messages and
// resolves the language replies should be written in.
//
// Supported languages: English ("en"), Malay ("ms"), Chinese ("zh").
// Anything else is reported as "unknown".
package language

import (
	"math"
	"strings"
	"unicode"
)

// Detection is the result of language detection.
type Detection struct {
	Lang       string  // "en", "ms", "zh" or "unknown"
	Confidence float64 // in [0,1]
}

// Detector is a statistical character n-gram classifier over the supported
// corpus plus a lightweight keyword heuristic. It is stateless after
// construction and safe for concurrent use.
type Detector struct {
	profiles map[string]map[string]float64
	keywords map[string][]string
}

// Seed corpora for the trigram profiles. Short but representative of the
// guest messages the front desk actually receives.
var seedCorpus = map[string]string{
	"en": `hello hi good morning can i check in what time is checkout where is my room
i want to make a booking how much is one night do you have towels the aircond is not working
thank you please help me i lost my card is breakfast included wifi password please
can you help can i get a late checkout i need an extra pillow see you tomorrow`,
	"ms": `selamat pagi boleh saya daftar masuk pukul berapa daftar keluar di mana bilik saya
saya nak buat tempahan berapa harga satu malam ada tuala tak penyaman udara rosak
terima kasih tolong saya kad saya hilang sarapan termasuk tak kata laluan wifi
boleh tolong boleh daftar keluar lewat saya perlukan bantal tambahan jumpa esok`,
	"zh": `你好 早上好 我可以入住吗 几点退房 我的房间在哪里 我想预订 一晚多少钱 有毛巾吗
空调坏了 谢谢 请帮我 我的卡丢了 包含早餐吗 无线网络密码 可以帮忙吗 可以晚退房吗 我需要多一个枕头 明天见`,
}

// Keyword heuristic: high-signal function words per language.
var seedKeywords = map[string][]string{
	"en": {"the", "is", "are", "you", "please", "can", "what", "where", "when", "how", "thanks", "thank"},
	"ms": {"saya", "boleh", "tak", "nak", "apa", "mana", "bila", "berapa", "ada", "tidak", "macam", "tolong", "terima", "kasih", "bilik", "esok"},
}

// NewDetector builds the detector from the embedded seed corpus.
func NewDetector() *Detector {
	d := &Detector{
		profiles: make(map[string]map[string]float64),
		keywords: seedKeywords,
	}
	for lang, corpus := range seedCorpus {
		d.profiles[lang] = trigramProfile(corpus)
	}
	return d
}

// Detect returns the primary language of text with a confidence score.
func (d *Detector) Detect(text string) Detection {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Detection{Lang: "unknown", Confidence: 0}
	}

	// Han characters are decisive on their own.
	if ratio := hanRatio(trimmed); ratio > 0 {
		conf := 0.6 + 0.4*ratio
		if conf > 1 {
			conf = 1
		}
		return Detection{Lang: "zh", Confidence: conf}
	}

	scores := map[string]float64{}
	query := trigramProfile(strings.ToLower(trimmed))
	for lang, profile := range d.profiles {
		if lang == "zh" {
			continue
		}
		scores[lang] = cosine(query, profile)
	}

	// Keyword hits dominate trigram noise on short messages.
	words := strings.Fields(strings.ToLower(trimmed))
	for lang, kws := range d.keywords {
		hits := 0
		for _, w := range words {
			w = strings.Trim(w, ".,!?;:\"'")
			for _, kw := range kws {
				if w == kw {
					hits++
					break
				}
			}
		}
		if hits > 0 {
			boost := 0.25 * float64(hits)
			if boost > 0.6 {
				boost = 0.6
			}
			scores[lang] += boost
		}
	}

	best, bestScore, total := "unknown", 0.0, 0.0
	for lang, s := range scores {
		total += s
		if s > bestScore {
			best, bestScore = lang, s
		}
	}
	if bestScore == 0 {
		return Detection{Lang: "unknown", Confidence: 0}
	}

	conf := bestScore
	if total > 0 {
		// Blend absolute strength with relative margin over the runner-up.
		conf = 0.5*clamp01(bestScore) + 0.5*(bestScore/total)
	}
	return Detection{Lang: best, Confidence: clamp01(conf)}
}

func hanRatio(text string) float64 {
	var han, letters int
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			han++
			letters++
		} else if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(han) / float64(letters)
}

func trigramProfile(text string) map[string]float64 {
	profile := map[string]float64{}
	padded := " " + strings.Join(strings.Fields(strings.ToLower(text)), " ") + " "
	runes := []rune(padded)
	if len(runes) < 3 {
		return profile
	}
	for i := 0; i+3 <= len(runes); i++ {
		profile[string(runes[i:i+3])]++
	}
	var norm float64
	for _, v := range profile {
		norm += v * v
	}
	if norm > 0 {
		inv := 1 / math.Sqrt(norm)
		for k := range profile {
			profile[k] *= inv
		}
	}
	return profile
}

func cosine(a, b map[string]float64) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var dot float64
	for k, av := range a {
		if bv, ok := b[k]; ok {
			dot += av * bv
		}
	}
	return dot
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
